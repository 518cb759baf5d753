package actions

import (
	"context"

	"github.com/marcus-qen/monfront/internal/frontend/auth"
	"github.com/marcus-qen/monfront/internal/frontend/macro"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/frontend/validate"
)

var eventNameSchema = validate.Schema{Fields: validate.Rules{
	"event_name": {Type: validate.String, Required: true, Check: macro.Check},
}}

// EventNameValidate checks the expression macros of a trigger event name
// while the trigger form is being edited. It changes nothing and so needs no
// anti-forgery token.
type EventNameValidate struct{}

func (c *EventNameValidate) InputContentType() mvc.ContentType { return mvc.ContentJSON }

func (c *EventNameValidate) CSRFExempt() bool { return true }

func (c *EventNameValidate) CheckInput(_ context.Context, req *mvc.Request) bool {
	ok := req.ValidateInput(eventNameSchema)
	if !ok {
		req.SetResponse(&mvc.DataResponse{Data: map[string]any{
			"result": false,
			"errors": req.Messages().Texts(),
		}})
	}
	return ok
}

func (c *EventNameValidate) CheckPermissions(_ context.Context, req *mvc.Request) (bool, error) {
	return req.CheckAccess(auth.RuleDataCollectionHosts), nil
}

func (c *EventNameValidate) DoAction(_ context.Context, req *mvc.Request) error {
	req.SetResponse(&mvc.DataResponse{Data: map[string]any{"result": true}})
	return nil
}
