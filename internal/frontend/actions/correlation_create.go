package actions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus-qen/monfront/internal/frontend/apiclient"
	"github.com/marcus-qen/monfront/internal/frontend/auth"
	"github.com/marcus-qen/monfront/internal/frontend/formula"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/frontend/validate"
)

// Condition evaluation types.
const (
	EvalAndOr      = 0
	EvalAnd        = 1
	EvalOr         = 2
	EvalExpression = 3
)

// Correlation statuses.
const (
	CorrelationEnabled  = 0
	CorrelationDisabled = 1
)

const (
	titleCorrelationFailed = "Cannot add correlation"
	msgCorrelationAdded    = "Correlation added"
)

var correlationCreateSchema = validate.Schema{Fields: validate.Rules{
	"name":         {Type: validate.String, Required: true, NotEmpty: true, MaxLen: 255},
	"description":  {Type: validate.String},
	"status":       {Type: validate.Int32, In: []string{"0", "1"}},
	"evaltype":     {Type: validate.Int32, In: []string{"0", "1", "2", "3"}},
	"formula":      {Type: validate.String},
	"conditions":   {Type: validate.Array},
	"op_close_old": {Type: validate.String, In: []string{"1"}},
	"op_close_new": {Type: validate.String, In: []string{"1"}},
}}

// conditionFields lists the fields each condition type must fill in.
var conditionFields = map[int][]string{
	apiclient.CorrConditionOldEventTag:      {"tag"},
	apiclient.CorrConditionNewEventTag:      {"tag"},
	apiclient.CorrConditionNewEventHostGrp:  {"groupid"},
	apiclient.CorrConditionEventTagPair:     {"oldtag", "newtag"},
	apiclient.CorrConditionOldEventTagValue: {"tag", "value"},
	apiclient.CorrConditionNewEventTagValue: {"tag", "value"},
}

// CorrelationCreate adds an event correlation from the correlation form.
type CorrelationCreate struct {
	deps       Deps
	conditions []apiclient.CorrelationCondition
}

func (c *CorrelationCreate) CheckInput(_ context.Context, req *mvc.Request) bool {
	ok := req.ValidateInput(correlationCreateSchema)
	if ok {
		conds, errs := parseConditions(req.List("conditions"))
		for _, e := range errs {
			req.Messages().Error(e)
		}
		if len(errs) > 0 {
			req.SetValidationStatus(mvc.ValidationError)
			ok = false
		}
		c.conditions = conds
	}

	if !ok && req.ValidationStatus() == mvc.ValidationError {
		req.SetResponse(c.failure(req))
	}
	return ok
}

func (c *CorrelationCreate) CheckPermissions(_ context.Context, req *mvc.Request) (bool, error) {
	return req.CheckAccess(auth.RuleEventCorrelation), nil
}

func (c *CorrelationCreate) DoAction(ctx context.Context, req *mvc.Request) error {
	corr := c.build(req)

	if err := checkCorrelation(corr); err != nil {
		req.Messages().Error(err.Error())
		req.SetResponse(c.failure(req))
		return nil
	}

	if _, err := c.deps.Correlations.Create(ctx, corr); err != nil {
		msg, ok := remoteError(err)
		if !ok {
			return fmt.Errorf("create correlation %q: %w", corr.Name, err)
		}
		req.Messages().Error(msg)
		req.SetResponse(c.failure(req))
		return nil
	}

	resp := mvc.NewRedirect(ActionCorrelationList)
	resp.Messages = []mvc.Message{{Type: mvc.MessageSuccess, Message: msgCorrelationAdded}}
	req.SetResponse(resp)
	return nil
}

// failure sends the user back to the form with what they submitted.
func (c *CorrelationCreate) failure(req *mvc.Request) *mvc.RedirectResponse {
	resp := mvc.NewRedirect(ActionCorrelationEdit)
	resp.FormData = map[string]any(req.InputAll())
	resp.Title = titleCorrelationFailed
	resp.Messages = req.Messages().All()
	return resp
}

func (c *CorrelationCreate) build(req *mvc.Request) apiclient.Correlation {
	status := CorrelationDisabled
	if n, ok := req.Int("status"); ok {
		status = n
	}
	evalType, _ := req.Int("evaltype")

	corr := apiclient.Correlation{
		Name:        req.String("name"),
		Description: req.String("description"),
		Status:      apiclient.Int(status),
		Filter: apiclient.CorrelationFilter{
			EvalType:   apiclient.Int(evalType),
			Conditions: c.conditions,
		},
		Operations: []apiclient.CorrelationOperation{},
	}
	if corr.Filter.Conditions == nil {
		corr.Filter.Conditions = []apiclient.CorrelationCondition{}
	}

	if evalType == EvalExpression {
		corr.Filter.Formula = req.String("formula")
		for i := range corr.Filter.Conditions {
			if corr.Filter.Conditions[i].FormulaID == "" {
				corr.Filter.Conditions[i].FormulaID = formula.LabelFor(i)
			}
		}
	} else {
		for i := range corr.Filter.Conditions {
			corr.Filter.Conditions[i].FormulaID = ""
		}
	}

	if req.HasInput("op_close_old") {
		corr.Operations = append(corr.Operations, apiclient.CorrelationOperation{Type: apiclient.CorrOperationCloseOld})
	}
	if req.HasInput("op_close_new") {
		corr.Operations = append(corr.Operations, apiclient.CorrelationOperation{Type: apiclient.CorrOperationCloseNew})
	}
	return corr
}

// checkCorrelation rejects correlations the remote API would refuse, with the
// same wording.
func checkCorrelation(corr apiclient.Correlation) error {
	if len(corr.Filter.Conditions) == 0 {
		return errors.New(`Invalid parameter "/1/filter/conditions": cannot be empty.`)
	}

	if corr.Filter.EvalType == EvalExpression {
		labels := make([]string, 0, len(corr.Filter.Conditions))
		for _, cond := range corr.Filter.Conditions {
			labels = append(labels, cond.FormulaID)
		}
		if err := formula.Validate(corr.Filter.Formula, labels); err != nil {
			var ferr *formula.Error
			if errors.As(err, &ferr) {
				return fmt.Errorf("Invalid parameter \"/1/filter/%s\": %s.", ferr.Param, ferr.Message)
			}
			return err
		}
	}

	if len(corr.Operations) == 0 {
		return errors.New(`Invalid parameter "/1/operations": cannot be empty.`)
	}
	return nil
}

// parseConditions reads the condition rows of the form. Every row must fill
// in the fields its type requires.
func parseConditions(items []any) ([]apiclient.CorrelationCondition, []string) {
	var (
		conds []apiclient.CorrelationCondition
		errs  []string
	)
	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, `Field "conditions" is not correct: an array is expected.`)
			continue
		}

		typ, err := strconv.Atoi(strings.TrimSpace(field(row, "type")))
		required, known := conditionFields[typ]
		if err != nil || !known {
			errs = append(errs, fmt.Sprintf("Incorrect value \"%s\" for \"type\" field.", field(row, "type")))
			continue
		}

		failed := false
		for _, name := range required {
			if strings.TrimSpace(field(row, name)) == "" {
				errs = append(errs, fmt.Sprintf("Incorrect value for field \"%s\": cannot be empty.", name))
				failed = true
			}
		}
		if failed {
			continue
		}

		op, _ := strconv.Atoi(field(row, "operator"))
		conds = append(conds, apiclient.CorrelationCondition{
			Type:      apiclient.Int(typ),
			Operator:  apiclient.Int(op),
			Tag:       field(row, "tag"),
			OldTag:    field(row, "oldtag"),
			NewTag:    field(row, "newtag"),
			GroupID:   field(row, "groupid"),
			Value:     field(row, "value"),
			FormulaID: field(row, "formulaid"),
		})
	}
	return conds, errs
}
