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

var correlationListSchema = validate.Schema{Fields: validate.Rules{
	"filter_name":   {Type: validate.String, MaxLen: 255},
	"filter_status": {Type: validate.Int32, In: []string{"-1", "0", "1"}},
}}

// CorrelationList returns the event correlations, optionally filtered by name
// and status.
type CorrelationList struct {
	deps Deps
}

func (c *CorrelationList) CSRFExempt() bool { return true }

func (c *CorrelationList) CheckInput(_ context.Context, req *mvc.Request) bool {
	return req.ValidateInput(correlationListSchema)
}

func (c *CorrelationList) CheckPermissions(_ context.Context, req *mvc.Request) (bool, error) {
	return req.CheckAccess(auth.RuleEventCorrelation), nil
}

func (c *CorrelationList) DoAction(ctx context.Context, req *mvc.Request) error {
	params := apiclient.CorrelationGetParams{SortField: "name"}
	if name := req.String("filter_name"); name != "" {
		params.Search = map[string]string{"name": name}
	}
	if status, ok := req.Int("filter_status"); ok && status >= 0 {
		params.Filter = map[string]string{"status": strconv.Itoa(status)}
	}

	list, err := c.deps.Correlations.Get(ctx, params)
	if err != nil {
		msg, ok := remoteError(err)
		if !ok {
			return fmt.Errorf("list correlations: %w", err)
		}
		req.Messages().Error(msg)
		list = nil
	}
	if list == nil {
		list = []apiclient.Correlation{}
	}

	req.SetResponse(&mvc.DataResponse{Data: map[string]any{
		"correlations": list,
		"messages":     req.Messages().All(),
	}})
	return nil
}
