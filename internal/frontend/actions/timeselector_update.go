package actions

import (
	"context"
	"fmt"

	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/frontend/timeperiod"
	"github.com/marcus-qen/monfront/internal/frontend/validate"
)

const dateLayout = "2006-01-02 15:04:05"

var timeSelectorSchema = validate.Schema{Fields: validate.Rules{
	"idx":  {Type: validate.String},
	"idx2": {Type: validate.IDs},
	"from": {Type: validate.String, Required: true, NotEmpty: true, MaxLen: 255},
	"to":   {Type: validate.String, Required: true, NotEmpty: true, MaxLen: 255},
}}

// TimeSelectorUpdate checks a time selector period and returns its resolved
// bounds.
type TimeSelectorUpdate struct {
	deps Deps
	// denied is set when the period bound itself cannot be resolved.
	denied error
}

func (c *TimeSelectorUpdate) CheckInput(_ context.Context, req *mvc.Request) bool {
	ok := req.ValidateInput(timeSelectorSchema)
	if ok {
		req.SetLocation(c.deps.location())
		valid, err := req.ValidateTimeSelectorPeriod(c.deps.now(), c.deps.MaxPeriod)
		switch {
		case err != nil:
			c.denied = err
		case !valid:
			req.SetValidationStatus(mvc.ValidationError)
			ok = false
		}
	}

	if !ok && req.ValidationStatus() == mvc.ValidationError {
		req.SetResponse(&mvc.DataResponse{Data: map[string]any{"errors": req.Messages().Texts()}})
	}
	return ok
}

func (c *TimeSelectorUpdate) CheckPermissions(_ context.Context, req *mvc.Request) (bool, error) {
	if c.denied != nil {
		return false, c.denied
	}
	return req.UserType() >= mvc.UserTypeUser, nil
}

func (c *TimeSelectorUpdate) DoAction(_ context.Context, req *mvc.Request) error {
	resolver := &timeperiod.Resolver{Now: c.deps.now, Location: c.deps.location()}

	from, err := resolver.Resolve(req.String("from"), true)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", req.String("from"), err)
	}
	to, err := resolver.Resolve(req.String("to"), false)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", req.String("to"), err)
	}

	req.SetResponse(&mvc.DataResponse{Data: map[string]any{
		"from":      req.String("from"),
		"from_ts":   from.Unix(),
		"from_date": from.Format(dateLayout),
		"to":        req.String("to"),
		"to_ts":     to.Unix(),
		"to_date":   to.Format(dateLayout),
	}})
	return nil
}
