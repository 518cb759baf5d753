// Package apiclient is a JSON-RPC 2.0 client for the monitoring backend API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/tidwall/gjson"

	"github.com/marcus-qen/monfront/internal/metrics"
	"github.com/marcus-qen/monfront/internal/telemetry"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 16 << 20
)

// Error is an error object returned by the remote API.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// UnmarshalJSON accepts any JSON value for data. Non-string data is kept as
// its compact JSON text.
func (e *Error) UnmarshalJSON(b []byte) error {
	var wire struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	e.Code, e.Message, e.Data = wire.Code, wire.Message, ""
	data := gjson.ParseBytes(wire.Data)
	switch data.Type {
	case gjson.Null:
	case gjson.String:
		e.Data = data.Str
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, wire.Data); err != nil {
			return err
		}
		e.Data = buf.String()
	}
	return nil
}

func (e *Error) Error() string {
	if e.Data != "" {
		return e.Data
	}
	return e.Message
}

// ErrUnavailable wraps failures to reach the API or to make sense of its reply.
var ErrUnavailable = errors.New("api unavailable")

// IsAPIError reports whether err carries a remote API error.
func IsAPIError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}

// Options configures a Client.
type Options struct {
	URL        string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logr.Logger
}

// Client calls remote API methods.
type Client struct {
	url    string
	token  string
	http   *http.Client
	log    logr.Logger
	nextID atomic.Int64
}

// New returns a client for the API endpoint at opts.URL.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("api url is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		url:   opts.URL,
		token: opts.Token,
		http:  hc,
		log:   opts.Logger.WithName("apiclient"),
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

// Call invokes method with params and decodes the result into out, which may
// be nil. A remote error is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params any, out any) (err error) {
	ctx, span := telemetry.StartAPICallSpan(ctx, method)
	start := time.Now()
	var code int
	defer func() {
		status := "ok"
		switch {
		case IsAPIError(err):
			status = "error"
		case err != nil:
			status = "transport_error"
		}
		metrics.RecordAPICall(method, status, time.Since(start))
		telemetry.EndAPICallSpan(span, code, err)
	}()

	id := c.nextID.Add(1)
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.V(1).Info("api call", "method", method, "id", id)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error(err, "api call failed", "method", method, "id", id)
		return fmt.Errorf("call %s: %w: %w", method, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read %s response: %w: %w", method, ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: %w: unexpected status %d", method, ErrUnavailable, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("call %s: %w: response is not valid JSON", method, ErrUnavailable)
	}

	parsed := gjson.ParseBytes(body)
	if respID := parsed.Get("id"); respID.Exists() && respID.Int() != id {
		return fmt.Errorf("call %s: %w: response id %d does not match request id %d", method, ErrUnavailable, respID.Int(), id)
	}
	if e := parsed.Get("error"); e.Exists() {
		apiErr := &Error{}
		if err := json.Unmarshal([]byte(e.Raw), apiErr); err != nil {
			return fmt.Errorf("decode %s error: %w", method, err)
		}
		code = apiErr.Code
		c.log.Info("api error", "method", method, "code", apiErr.Code, "message", apiErr.Message, "data", apiErr.Data)
		return apiErr
	}

	result := parsed.Get("result")
	if !result.Exists() {
		return fmt.Errorf("call %s: %w: response has neither result nor error", method, ErrUnavailable)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(result.Raw), out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Services returns the service API.
func (c *Client) Services() *Services { return &Services{c: c} }

// Correlations returns the event correlation API.
func (c *Client) Correlations() *Correlations { return &Correlations{c: c} }
