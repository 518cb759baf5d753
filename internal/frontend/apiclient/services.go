package apiclient

import (
	"context"
)

// ServiceRef points at a service by id.
type ServiceRef struct {
	ServiceID string `json:"serviceid"`
}

// Tag is a name/value tag.
type Tag struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// ProblemTag matches problems by tag. Operator is 0 (equals) or 2 (contains).
type ProblemTag struct {
	Tag      string `json:"tag"`
	Operator string `json:"operator,omitempty"`
	Value    string `json:"value"`
}

// Service is the writable part of a service object.
type Service struct {
	ServiceID        string           `json:"serviceid"`
	Name             string           `json:"name,omitempty"`
	Algorithm        int              `json:"algorithm"`
	SortOrder        int              `json:"sortorder"`
	ShowSLA          int              `json:"showsla"`
	GoodSLA          string           `json:"goodsla,omitempty"`
	Weight           int              `json:"weight"`
	PropagationRule  int              `json:"propagation_rule"`
	PropagationValue int              `json:"propagation_value"`
	Tags             []Tag            `json:"tags"`
	ProblemTags      []ProblemTag     `json:"problem_tags"`
	Parents          []ServiceRef     `json:"parents"`
	Children         []ServiceRef     `json:"children"`
	StatusRules      []map[string]any `json:"status_rules"`
	Times            []map[string]any `json:"times"`
}

// ServiceGetParams selects services.
type ServiceGetParams struct {
	Output     any      `json:"output"`
	ServiceIDs []string `json:"serviceids,omitempty"`
}

// Services wraps the service.* methods.
type Services struct {
	c *Client
}

// Get returns the ids of the services matching params.
func (s *Services) Get(ctx context.Context, params ServiceGetParams) ([]ServiceRef, error) {
	if params.Output == nil {
		params.Output = []string{}
	}
	var out []ServiceRef
	if err := s.c.Call(ctx, "service.get", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes svc and returns the updated service ids.
func (s *Services) Update(ctx context.Context, svc Service) ([]string, error) {
	var out struct {
		ServiceIDs []string `json:"serviceids"`
	}
	if err := s.c.Call(ctx, "service.update", svc, &out); err != nil {
		return nil, err
	}
	return out.ServiceIDs, nil
}
