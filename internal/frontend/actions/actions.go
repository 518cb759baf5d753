// Package actions holds the controllers served by the action endpoint.
package actions

import (
	"context"
	"errors"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/apiclient"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
)

// Action names.
const (
	ActionServiceUpdate      = "service.update"
	ActionCorrelationCreate  = "correlation.create"
	ActionCorrelationList    = "correlation.list"
	ActionCorrelationEdit    = "correlation.edit"
	ActionEventNameValidate  = "trigger.eventname.validate"
	ActionTimeSelectorUpdate = "timeselector.update"
)

// ServiceAPI is the part of the remote service API the controllers use.
type ServiceAPI interface {
	Get(ctx context.Context, params apiclient.ServiceGetParams) ([]apiclient.ServiceRef, error)
	Update(ctx context.Context, svc apiclient.Service) ([]string, error)
}

// CorrelationAPI is the part of the remote correlation API the controllers use.
type CorrelationAPI interface {
	Get(ctx context.Context, params apiclient.CorrelationGetParams) ([]apiclient.Correlation, error)
	Create(ctx context.Context, corr ...apiclient.Correlation) ([]string, error)
}

// Deps are the collaborators shared by all controllers.
type Deps struct {
	Services     ServiceAPI
	Correlations CorrelationAPI

	// Now defaults to time.Now.
	Now func() time.Time
	// MaxPeriod bounds the time selector, e.g. "2y".
	MaxPeriod string
	// Location resolves time selector input. Nil means UTC.
	Location *time.Location
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) location() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.UTC
}

// Register adds every controller to reg.
func Register(reg *mvc.Registry, deps Deps) error {
	if deps.Services == nil || deps.Correlations == nil {
		return errors.New("actions: remote API facades are required")
	}
	if deps.MaxPeriod == "" {
		deps.MaxPeriod = "2y"
	}

	factories := map[string]mvc.Factory{
		ActionServiceUpdate:      func() mvc.Controller { return &ServiceUpdate{deps: deps} },
		ActionCorrelationCreate:  func() mvc.Controller { return &CorrelationCreate{deps: deps} },
		ActionCorrelationEdit:    func() mvc.Controller { return &CorrelationEdit{deps: deps} },
		ActionCorrelationList:    func() mvc.Controller { return &CorrelationList{deps: deps} },
		ActionEventNameValidate:  func() mvc.Controller { return &EventNameValidate{} },
		ActionTimeSelectorUpdate: func() mvc.Controller { return &TimeSelectorUpdate{deps: deps} },
	}
	for action, f := range factories {
		if err := reg.Register(action, f); err != nil {
			return err
		}
	}
	return nil
}

// remoteError returns the message of a remote API error. ok is false for
// transport failures, which the caller should return as errors.
func remoteError(err error) (string, bool) {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return apiErr.Error(), true
	}
	return "", false
}
