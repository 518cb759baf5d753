package actions

import (
	"context"
	"fmt"

	"github.com/marcus-qen/monfront/internal/frontend/apiclient"
	"github.com/marcus-qen/monfront/internal/frontend/auth"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/frontend/validate"
)

var correlationEditSchema = validate.Schema{Fields: validate.Rules{
	"correlationid": {Type: validate.ID},
	"name":          {Type: validate.String},
	"description":   {Type: validate.String},
	"status":        {Type: validate.Int32, In: []string{"0", "1"}},
	"evaltype":      {Type: validate.Int32, In: []string{"0", "1", "2", "3"}},
	"formula":       {Type: validate.String},
	"conditions":    {Type: validate.Array},
	"op_close_old":  {Type: validate.String, In: []string{"1"}},
	"op_close_new":  {Type: validate.String, In: []string{"1"}},
}}

// correlationFormFields are the form fields returned to the editor.
var correlationFormFields = []string{
	"correlationid", "name", "description", "status", "evaltype", "formula",
	"conditions", "op_close_old", "op_close_new",
}

// CorrelationEdit returns the correlation form: values restored from a failed
// submission, an existing correlation, or defaults for a new one.
type CorrelationEdit struct {
	deps   Deps
	stored *apiclient.Correlation
}

func (c *CorrelationEdit) CSRFExempt() bool { return true }

func (c *CorrelationEdit) CheckInput(_ context.Context, req *mvc.Request) bool {
	return req.ValidateInput(correlationEditSchema)
}

func (c *CorrelationEdit) CheckPermissions(ctx context.Context, req *mvc.Request) (bool, error) {
	if !req.CheckAccess(auth.RuleEventCorrelation) {
		return false, nil
	}
	if !req.HasInput("correlationid") || req.HasInput("name") {
		return true, nil
	}

	found, err := c.deps.Correlations.Get(ctx, apiclient.CorrelationGetParams{
		CorrelationIDs: []string{req.String("correlationid")},
	})
	if err != nil {
		return false, fmt.Errorf("load correlation %s: %w", req.String("correlationid"), err)
	}
	if len(found) == 0 {
		return false, nil
	}
	c.stored = &found[0]
	return true, nil
}

func (c *CorrelationEdit) DoAction(_ context.Context, req *mvc.Request) error {
	form := map[string]any{
		"name":        "",
		"description": "",
		"status":      CorrelationEnabled,
		"evaltype":    EvalAndOr,
		"formula":     "",
		"conditions":  []any{},
	}
	if c.stored != nil {
		form = formFromCorrelation(*c.stored)
	}
	req.Inputs(form, correlationFormFields...)

	req.SetResponse(&mvc.DataResponse{Data: map[string]any{
		"form":     form,
		"title":    req.Messages().Title(),
		"messages": req.Messages().All(),
	}})
	return nil
}

func formFromCorrelation(corr apiclient.Correlation) map[string]any {
	conds := make([]any, 0, len(corr.Filter.Conditions))
	for _, cond := range corr.Filter.Conditions {
		conds = append(conds, cond)
	}
	form := map[string]any{
		"correlationid": corr.CorrelationID,
		"name":          corr.Name,
		"description":   corr.Description,
		"status":        int(corr.Status),
		"evaltype":      int(corr.Filter.EvalType),
		"formula":       corr.Filter.Formula,
		"conditions":    conds,
	}
	for _, op := range corr.Operations {
		switch op.Type {
		case apiclient.CorrOperationCloseOld:
			form["op_close_old"] = "1"
		case apiclient.CorrOperationCloseNew:
			form["op_close_new"] = "1"
		}
	}
	return form
}
