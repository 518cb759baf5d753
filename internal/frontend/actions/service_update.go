package actions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/marcus-qen/monfront/internal/frontend/apiclient"
	"github.com/marcus-qen/monfront/internal/frontend/auth"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/frontend/validate"
)

// Status calculation algorithms.
const (
	AlgorithmSetOK           = 0
	AlgorithmMostCriticalOne = 1
	AlgorithmMostCriticalAll = 2
)

// Status propagation rules.
const (
	PropagationAsIs     = 0
	PropagationIncrease = 1
	PropagationDecrease = 2
	PropagationIgnore   = 3
	PropagationFixed    = 4
)

// severityCount bounds the increase and decrease steps.
const severityCount = 6

// PropagationNames labels the propagation rules.
var PropagationNames = map[int]string{
	PropagationAsIs:     "As is",
	PropagationIncrease: "Increase by",
	PropagationDecrease: "Decrease by",
	PropagationIgnore:   "Ignore this service",
	PropagationFixed:    "Set fixed status",
}

// StatusNames labels the service statuses a fixed propagation may set.
var StatusNames = map[int]string{
	-1: "OK",
	0:  "Not classified",
	1:  "Information",
	2:  "Warning",
	3:  "Average",
	4:  "High",
	5:  "Disaster",
}

var serviceUpdateSchema = validate.Schema{
	Fields: validate.Rules{
		"serviceid":                {Type: validate.ID, Required: true},
		"name":                     {Type: validate.String, Required: true, NotEmpty: true, MaxLen: 128},
		"parent_serviceids":        {Type: validate.IDs},
		"child_serviceids":         {Type: validate.IDs},
		"problem_tags":             {Type: validate.Array},
		"status_rules":             {Type: validate.Array},
		"times":                    {Type: validate.Array},
		"tags":                     {Type: validate.Array},
		"sortorder":                {Type: validate.Int32, Required: true, Range: validate.Between(0, 999)},
		"algorithm":                {Type: validate.Int32, Required: true, In: []string{"0", "1", "2"}},
		"advanced_configuration":   {Type: validate.String, In: []string{"1"}},
		"showsla":                  {Type: validate.String, In: []string{"1"}},
		"propagation_rule":         {Type: validate.Int32, In: []string{"0", "1", "2", "3", "4"}},
		"propagation_value_number": {Type: validate.Int32},
		"propagation_value_status": {Type: validate.Int32},
		"weight":                   {Type: validate.String},
		"goodsla":                  {Type: validate.String},
	},
	When: []validate.Condition{
		{
			If: advanced,
			Fields: validate.Rules{
				"propagation_rule": {Type: validate.Int32, Required: true},
			},
		},
		{
			If: func(v validate.Values) bool { return advanced(v) && v.String("weight") != "" },
			Fields: validate.Rules{
				"weight": {Type: validate.Int32, Range: validate.Between(0, 1000000)},
			},
		},
	},
}

func advanced(v validate.Values) bool { return v.Has("advanced_configuration") }

// ServiceUpdate saves a service edited in the service form.
type ServiceUpdate struct {
	deps Deps
}

func (c *ServiceUpdate) CheckInput(_ context.Context, req *mvc.Request) bool {
	ok := req.ValidateInput(serviceUpdateSchema)

	if ok && req.HasInput("advanced_configuration") && !propagationValueOK(req) {
		rule, _ := req.Int("propagation_rule")
		req.Messages().Error(fmt.Sprintf("Field \"%s\" is mandatory.", PropagationNames[rule]))
		req.SetValidationStatus(mvc.ValidationError)
		ok = false
	}

	if !ok {
		errs := req.Messages().Texts()
		req.SetResponse(&mvc.DataResponse{Data: map[string]any{"errors": errs}})
	}
	return ok
}

func propagationValueOK(req *mvc.Request) bool {
	rule, _ := req.Int("propagation_rule")
	switch rule {
	case PropagationIncrease, PropagationDecrease:
		n, ok := req.Int("propagation_value_number")
		return ok && n >= 1 && n < severityCount
	case PropagationFixed:
		n, ok := req.Int("propagation_value_status")
		if !ok {
			return false
		}
		_, known := StatusNames[n]
		return known
	default:
		return true
	}
}

func (c *ServiceUpdate) CheckPermissions(ctx context.Context, req *mvc.Request) (bool, error) {
	if !req.CheckAccess(auth.RuleMonitoringServices) || !req.CheckAccess(auth.RuleManageServices) {
		return false, nil
	}

	found, err := c.deps.Services.Get(ctx, apiclient.ServiceGetParams{
		ServiceIDs: []string{req.String("serviceid")},
	})
	if err != nil {
		return false, fmt.Errorf("look up service %s: %w", req.String("serviceid"), err)
	}
	return len(found) > 0, nil
}

func (c *ServiceUpdate) DoAction(ctx context.Context, req *mvc.Request) error {
	svc := buildService(req)

	if _, err := c.deps.Services.Update(ctx, svc); err != nil {
		msg, ok := remoteError(err)
		if !ok {
			return fmt.Errorf("update service %s: %w", svc.ServiceID, err)
		}
		req.Messages().Error(msg)
		req.SetResponse(&mvc.DataResponse{Data: map[string]any{
			"error": map[string]any{
				"title":    "Cannot update service",
				"messages": req.Messages().Texts(),
			},
		}})
		return nil
	}

	out := map[string]any{"title": "Service updated"}
	if req.Messages().Len() > 0 {
		out["messages"] = req.Messages().Texts()
	}
	req.SetResponse(&mvc.DataResponse{Data: out})
	return nil
}

func buildService(req *mvc.Request) apiclient.Service {
	svc := apiclient.Service{
		ServiceID:   req.String("serviceid"),
		Name:        req.String("name"),
		GoodSLA:     req.String("goodsla"),
		Tags:        []apiclient.Tag{},
		ProblemTags: []apiclient.ProblemTag{},
		Parents:     []apiclient.ServiceRef{},
		Children:    []apiclient.ServiceRef{},
		StatusRules: []map[string]any{},
		Times:       objects(req.List("times")),
	}
	svc.Algorithm, _ = req.Int("algorithm")
	svc.SortOrder, _ = req.Int("sortorder")
	if req.HasInput("showsla") {
		svc.ShowSLA = 1
	}

	for _, t := range objects(req.List("tags")) {
		tag, value := field(t, "tag"), field(t, "value")
		if tag == "" && value == "" {
			continue
		}
		svc.Tags = append(svc.Tags, apiclient.Tag{Tag: tag, Value: value})
	}

	if svc.Algorithm != AlgorithmSetOK {
		for _, t := range objects(req.List("problem_tags")) {
			tag, value := field(t, "tag"), field(t, "value")
			if tag == "" && value == "" {
				continue
			}
			svc.ProblemTags = append(svc.ProblemTags, apiclient.ProblemTag{
				Tag:      tag,
				Operator: field(t, "operator"),
				Value:    value,
			})
		}
	}

	for _, id := range req.Strings("parent_serviceids") {
		svc.Parents = append(svc.Parents, apiclient.ServiceRef{ServiceID: id})
	}
	for _, id := range req.Strings("child_serviceids") {
		svc.Children = append(svc.Children, apiclient.ServiceRef{ServiceID: id})
	}

	// Without advanced configuration the database defaults (all zero) apply.
	if req.HasInput("advanced_configuration") {
		svc.StatusRules = objects(req.List("status_rules"))
		svc.PropagationRule, _ = req.Int("propagation_rule")
		switch svc.PropagationRule {
		case PropagationIncrease, PropagationDecrease:
			svc.PropagationValue, _ = req.Int("propagation_value_number")
		case PropagationFixed:
			svc.PropagationValue, _ = req.Int("propagation_value_status")
		}
		svc.Weight, _ = req.Int("weight")
	}
	return svc
}

// objects keeps the map elements of an array input.
func objects(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func field(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
