package mvc

import (
	"fmt"
	"math"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/csrf"
	"github.com/marcus-qen/monfront/internal/frontend/timeperiod"
	"github.com/marcus-qen/monfront/internal/frontend/validate"
)

// ValidationStatus is the outcome of input validation.
type ValidationStatus int

const (
	ValidationOK ValidationStatus = iota
	// ValidationError means some fields were rejected; the user can correct them.
	ValidationError
	// ValidationFatal means the input could not be interpreted.
	ValidationFatal
)

func (s ValidationStatus) String() string {
	switch s {
	case ValidationOK:
		return "ok"
	case ValidationError:
		return "error"
	case ValidationFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// UserType is the caller's privilege tier.
type UserType int

const (
	UserTypeUser       UserType = 1
	UserTypeAdmin      UserType = 2
	UserTypeSuperAdmin UserType = 3
)

// User is the caller identity visible to controllers.
type User interface {
	ID() string
	Type() UserType
	CheckAccess(rule string) bool
	DebugMode() bool
}

const (
	minPeriod = 60 * time.Second
	secPerDay = 24 * 60 * 60
)

// Request is the per-request state a controller works on.
type Request struct {
	Action string

	raw      map[string]any
	input    validate.Values
	status   ValidationStatus
	messages Messages
	user     User
	response Response
	location *time.Location
}

// NewRequest returns request state for action. raw may be nil when the body
// could not be read.
func NewRequest(action string, raw map[string]any, user User) *Request {
	return &Request{
		Action:   action,
		raw:      raw,
		input:    validate.Values{},
		user:     user,
		location: time.UTC,
	}
}

// SetLocation sets the time zone used to resolve time selector input.
func (r *Request) SetLocation(loc *time.Location) {
	if loc != nil {
		r.location = loc
	}
}

// Raw returns the unvalidated input.
func (r *Request) Raw() map[string]any { return r.raw }

// CSRFToken returns the anti-forgery token from the raw input.
func (r *Request) CSRFToken() (string, bool) {
	if r.raw == nil {
		return "", false
	}
	v, ok := r.raw[csrf.TokenName]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ValidateInput validates the raw input against schema, records the result
// and adds every validation error to the request's messages.
func (r *Request) ValidateInput(schema validate.Schema) bool {
	res := schema.Validate(r.raw)
	r.input = res.Values
	for _, e := range res.Errors {
		r.messages.Error(e)
	}
	switch {
	case res.IsFatal():
		r.status = ValidationFatal
	case res.IsError():
		r.status = ValidationError
	default:
		r.status = ValidationOK
	}
	return r.status == ValidationOK
}

// ValidationStatus returns the recorded validation outcome.
func (r *Request) ValidationStatus() ValidationStatus { return r.status }

// SetValidationStatus overrides the validation outcome, for checks that run
// after ValidateInput.
func (r *Request) SetValidationStatus(s ValidationStatus) { r.status = s }

// HasInput reports whether name passed validation.
func (r *Request) HasInput(name string) bool { return r.input.Has(name) }

// Input returns a validated value or nil.
func (r *Request) Input(name string) any { return r.input[name] }

// InputOr returns a validated value or def.
func (r *Request) InputOr(name string, def any) any {
	if v, ok := r.input[name]; ok {
		return v
	}
	return def
}

// String returns a validated value as a string.
func (r *Request) String(name string) string { return r.input.String(name) }

// Int returns a validated integer value.
func (r *Request) Int(name string) (int, bool) { return r.input.Int(name) }

// Strings returns a validated id list.
func (r *Request) Strings(name string) []string { return r.input.Strings(name) }

// List returns a validated array value.
func (r *Request) List(name string) []any { return r.input.List(name) }

// Inputs copies the named validated values that are present into dst.
func (r *Request) Inputs(dst map[string]any, names ...string) {
	for _, name := range names {
		if v, ok := r.input[name]; ok {
			dst[name] = v
		}
	}
}

// InputAll returns a copy of all validated values.
func (r *Request) InputAll() validate.Values {
	out := make(validate.Values, len(r.input))
	for k, v := range r.input {
		out[k] = v
	}
	return out
}

// SetResponse sets the response returned by the dispatcher.
func (r *Request) SetResponse(resp Response) { r.response = resp }

// Response returns the response set so far.
func (r *Request) Response() Response { return r.response }

// Messages returns the request's message collector.
func (r *Request) Messages() *Messages { return &r.messages }

// User returns the caller, which may be nil for unauthenticated requests.
func (r *Request) User() User { return r.user }

// CheckAccess reports whether the caller holds an access rule.
func (r *Request) CheckAccess(rule string) bool {
	return r.user != nil && r.user.CheckAccess(rule)
}

// UserType returns the caller's tier, 0 when unauthenticated.
func (r *Request) UserType() UserType {
	if r.user == nil {
		return 0
	}
	return r.user.Type()
}

// DebugMode reports whether the caller has debug output enabled.
func (r *Request) DebugMode() bool {
	return r.user != nil && r.user.DebugMode()
}

// ValidateTimeSelectorPeriod checks the "from" and "to" inputs against the
// allowed display period. maxPeriod is a relative span such as "2y". It
// returns false with a message when the period is out of bounds and an
// access-denied error when maxPeriod cannot be resolved.
func (r *Request) ValidateTimeSelectorPeriod(now time.Time, maxPeriod string) (bool, error) {
	if !r.HasInput("from") || !r.HasInput("to") {
		return true, nil
	}

	resolver := &timeperiod.Resolver{Now: func() time.Time { return now }, Location: r.location}
	maxSpan, err := resolver.Duration(maxPeriod)
	if err != nil {
		return false, &AccessDeniedError{Action: r.Action, Reason: fmt.Sprintf("max period %q: %v", maxPeriod, err)}
	}

	from, err := resolver.Resolve(r.String("from"), true)
	if err != nil {
		r.messages.Error(`Incorrect value for field "from": a time is expected.`)
		return false, nil
	}
	to, err := resolver.Resolve(r.String("to"), false)
	if err != nil {
		r.messages.Error(`Incorrect value for field "to": a time is expected.`)
		return false, nil
	}

	period := to.Sub(from) + time.Second
	switch {
	case period < minPeriod:
		r.messages.Error(plural(int(minPeriod/time.Minute), "Minimum time period to display is %d minute.", "Minimum time period to display is %d minutes."))
		return false, nil
	case period > maxSpan:
		days := int(math.Round(maxSpan.Seconds() / secPerDay))
		r.messages.Error(plural(days, "Maximum time period to display is %d day.", "Maximum time period to display is %d days."))
		return false, nil
	}
	return true, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf(one, n)
	}
	return fmt.Sprintf(many, n)
}
