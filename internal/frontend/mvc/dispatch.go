// Package mvc runs action controllers through the request lifecycle:
// anti-forgery check, input validation, permission check and the action
// itself.
package mvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus-qen/monfront/internal/frontend/csrf"
)

// ErrAccessDenied is the sentinel behind every access-denied failure.
var ErrAccessDenied = errors.New("access denied")

// AccessDeniedError carries the reason a request was refused.
type AccessDeniedError struct {
	Action string
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied to %q: %s", e.Action, e.Reason)
}

// Unwrap lets errors.Is match ErrAccessDenied.
func (e *AccessDeniedError) Unwrap() error { return ErrAccessDenied }

// Controller handles one action.
type Controller interface {
	// CheckInput validates the request input, usually via Request.ValidateInput.
	CheckInput(ctx context.Context, req *Request) bool
	// CheckPermissions reports whether the caller may run the action.
	CheckPermissions(ctx context.Context, req *Request) (bool, error)
	// DoAction performs the action and sets the response.
	DoAction(ctx context.Context, req *Request) error
}

// CSRFExempter is implemented by controllers that skip the anti-forgery check.
type CSRFExempter interface {
	CSRFExempt() bool
}

// InputTyper is implemented by controllers that read a non-form body.
type InputTyper interface {
	InputContentType() ContentType
}

// TokenChecker verifies anti-forgery tokens.
type TokenChecker interface {
	Check(token, domain string) bool
}

// InputContentTypeOf returns how c reads its input.
func InputContentTypeOf(c Controller) ContentType {
	if t, ok := c.(InputTyper); ok {
		return t.InputContentType()
	}
	return ContentForm
}

func csrfRequired(c Controller) bool {
	if e, ok := c.(CSRFExempter); ok {
		return !e.CSRFExempt()
	}
	return true
}

// Run drives c through the request lifecycle and returns its response.
// Anti-forgery and permission failures return an error wrapping
// ErrAccessDenied. Validation errors never fail the call: they are returned
// in the response.
func Run(ctx context.Context, c Controller, req *Request, tokens TokenChecker) (Response, error) {
	if csrfRequired(c) {
		if err := checkCSRF(req, tokens); err != nil {
			return nil, err
		}
	}

	if c.CheckInput(ctx, req) {
		ok, err := c.CheckPermissions(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("check permissions for %s: %w", req.Action, err)
		}
		if !ok {
			return nil, &AccessDeniedError{Action: req.Action, Reason: "insufficient permissions"}
		}
		if err := c.DoAction(ctx, req); err != nil {
			return nil, fmt.Errorf("run %s: %w", req.Action, err)
		}
		return req.Response(), nil
	}

	if req.Response() != nil {
		return req.Response(), nil
	}
	if req.ValidationStatus() == ValidationFatal {
		return &FatalRedirectResponse{Messages: req.Messages().All()}, nil
	}
	errs := req.Messages().Errors()
	if errs == nil {
		errs = []string{}
	}
	return &DataResponse{Data: map[string]any{"errors": errs}}, nil
}

func checkCSRF(req *Request, tokens TokenChecker) error {
	if req.Raw() == nil {
		return &AccessDeniedError{Action: req.Action, Reason: "no input"}
	}
	token, ok := req.CSRFToken()
	if !ok {
		return &AccessDeniedError{Action: req.Action, Reason: "missing anti-forgery token"}
	}
	domain, ok := csrf.Domain(req.Action)
	if !ok {
		return &AccessDeniedError{Action: req.Action, Reason: "action has no signing domain"}
	}
	if tokens == nil || !tokens.Check(token, domain) {
		return &AccessDeniedError{Action: req.Action, Reason: "anti-forgery token mismatch"}
	}
	return nil
}
