package apiclient

import "context"

// Correlation condition types.
const (
	CorrConditionOldEventTag      = 0
	CorrConditionNewEventTag      = 1
	CorrConditionNewEventHostGrp  = 2
	CorrConditionEventTagPair     = 3
	CorrConditionOldEventTagValue = 4
	CorrConditionNewEventTagValue = 5
)

// Correlation operation types.
const (
	CorrOperationCloseOld = 0
	CorrOperationCloseNew = 1
)

// CorrelationCondition is one filter condition.
type CorrelationCondition struct {
	Type      Int    `json:"type"`
	Operator  Int    `json:"operator"`
	Tag       string `json:"tag,omitempty"`
	OldTag    string `json:"oldtag,omitempty"`
	NewTag    string `json:"newtag,omitempty"`
	GroupID   string `json:"groupid,omitempty"`
	Value     string `json:"value,omitempty"`
	FormulaID string `json:"formulaid,omitempty"`
}

// CorrelationFilter combines conditions.
type CorrelationFilter struct {
	EvalType   Int                    `json:"evaltype"`
	Formula    string                 `json:"formula,omitempty"`
	Conditions []CorrelationCondition `json:"conditions"`
}

// CorrelationOperation is an action taken when a correlation matches.
type CorrelationOperation struct {
	Type Int `json:"type"`
}

// Correlation is an event correlation rule.
type Correlation struct {
	CorrelationID string                 `json:"correlationid,omitempty"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Status        Int                    `json:"status"`
	Filter        CorrelationFilter      `json:"filter"`
	Operations    []CorrelationOperation `json:"operations"`
}

// CorrelationGetParams selects correlations.
type CorrelationGetParams struct {
	Output         any               `json:"output"`
	CorrelationIDs []string          `json:"correlationids,omitempty"`
	Filter         map[string]string `json:"filter,omitempty"`
	Search         map[string]string `json:"search,omitempty"`
	SortField      string            `json:"sortfield,omitempty"`
}

// Correlations wraps the correlation.* methods.
type Correlations struct {
	c *Client
}

// Get returns the correlations matching params.
func (s *Correlations) Get(ctx context.Context, params CorrelationGetParams) ([]Correlation, error) {
	if params.Output == nil {
		params.Output = "extend"
	}
	var out []Correlation
	if err := s.c.Call(ctx, "correlation.get", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create creates correlations and returns their ids.
func (s *Correlations) Create(ctx context.Context, corr ...Correlation) ([]string, error) {
	var out struct {
		CorrelationIDs []string `json:"correlationids"`
	}
	if err := s.c.Call(ctx, "correlation.create", corr, &out); err != nil {
		return nil, err
	}
	return out.CorrelationIDs, nil
}
