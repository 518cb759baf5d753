package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/apiclient"
	"github.com/marcus-qen/monfront/internal/frontend/audit"
	"github.com/marcus-qen/monfront/internal/frontend/auth"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/metrics"
	"github.com/marcus-qen/monfront/internal/shared/security"
	"github.com/marcus-qen/monfront/internal/telemetry"
	"go.uber.org/zap"
)

// Longest input value or error text kept in an audit event.
const (
	auditInputMaxLen = 200
	auditErrorMaxLen = 500
)

// Dispatch outcomes, used as metric label and span attribute.
const (
	outcomeOK      = "ok"
	outcomeInvalid = "invalid"
	outcomeDenied  = "denied"
	outcomeError   = "error"
)

// handleAction runs the controller registered for the "action" parameter.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimSpace(mvc.ActionParam(r))
	ctrl, ok := s.registry.New(action)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown_action", fmt.Sprintf("unknown action %q", action))
		return
	}

	user := auth.UserFromContext(r.Context())
	key, role := "anonymous", "anonymous"
	var mvcUser mvc.User
	if user != nil {
		key, role = user.UserID, user.Role
		mvcUser = user
	}

	if d := s.dispatchLimiter.Acquire(key); !d.Allowed {
		metrics.RecordRateLimited("dispatch", role)
		s.logger.Info("dispatch throttled", zap.String("action", action), zap.String("reason", d.Reason))
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", d.Reason)
		return
	}
	defer s.dispatchLimiter.Release(key)

	start := time.Now()
	metrics.InflightDispatches.Inc()
	defer metrics.InflightDispatches.Dec()

	ctx, span := telemetry.StartDispatchSpan(r.Context(), action, r.Method)

	in := mvc.ReadInput(r, mvc.InputContentTypeOf(ctrl), s.signer)
	req := mvc.NewRequest(action, in.Raw, mvcUser)
	req.SetLocation(s.location)
	if in.Title != "" {
		req.Messages().SetTitle(in.Title)
	}
	req.Messages().Add(in.Messages...)

	var tokens mvc.TokenChecker
	if user != nil {
		tokens = user.CSRF()
	}

	resp, err := mvc.Run(ctx, ctrl, req, tokens)
	outcome := dispatchOutcome(resp, req, err)

	metrics.RecordDispatch(action, outcome, time.Since(start))
	telemetry.EndDispatchSpan(span, outcome, err)
	s.auditDispatch(action, user, in.Raw, outcome, err)

	if err != nil {
		s.writeDispatchError(w, action, err)
		return
	}
	s.render(w, r, resp)
}

func dispatchOutcome(resp mvc.Response, req *mvc.Request, err error) string {
	switch {
	case errors.Is(err, mvc.ErrAccessDenied):
		return outcomeDenied
	case err != nil:
		return outcomeError
	case req.ValidationStatus() != mvc.ValidationOK:
		return outcomeInvalid
	}
	if _, fatal := resp.(*mvc.FatalRedirectResponse); fatal {
		return outcomeInvalid
	}
	return outcomeOK
}

func (s *Server) auditDispatch(action string, user *auth.AuthenticatedUser, raw map[string]any, outcome string, err error) {
	actor := "anonymous"
	if user != nil {
		actor = user.Username
	}

	evt := audit.Event{Action: action, Actor: actor}
	switch outcome {
	case outcomeDenied:
		evt.Type = audit.EventActionDenied
		evt.Summary = fmt.Sprintf("Access to %s denied for %s", action, actor)
		evt.Detail = map[string]string{"reason": security.SanitizeError(err, auditErrorMaxLen)}
	case outcomeError:
		evt.Type = audit.EventActionFailed
		evt.Summary = fmt.Sprintf("Action %s failed", action)
		evt.Detail = map[string]string{"error": security.SanitizeError(err, auditErrorMaxLen)}
	case outcomeOK:
		evt.Type = audit.EventActionExecuted
		evt.Summary = fmt.Sprintf("Action %s executed by %s", action, actor)
		evt.Detail = map[string]any{"input": security.SanitizeInput(raw, auditInputMaxLen)}
	default:
		return
	}
	s.auditStore.Record(evt)
}

func (s *Server) writeDispatchError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, mvc.ErrAccessDenied):
		s.logger.Info("action denied", zap.String("action", action), zap.Error(err))
		writeJSONError(w, http.StatusForbidden, "access_denied", "access denied")
	case errors.Is(err, apiclient.ErrUnavailable), apiclient.IsAPIError(err):
		s.logger.Warn("action upstream failure", zap.String("action", action), zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "upstream_error", "monitoring API request failed")
	default:
		s.logger.Error("action failed", zap.String("action", action), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// render writes a controller response. A nil response means the controller
// produced no output.
func (s *Server) render(w http.ResponseWriter, r *http.Request, resp mvc.Response) {
	switch resp := resp.(type) {
	case *mvc.DataResponse:
		writeJSON(w, http.StatusOK, resp.Data)
	case *mvc.RedirectResponse:
		loc, err := resp.Location(s.signer)
		if err != nil {
			s.logger.Error("build redirect", zap.String("action", resp.Action), zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}
		http.Redirect(w, r, loc, http.StatusFound)
	case *mvc.FatalRedirectResponse:
		if wantsJSON(r) {
			texts := make([]string, 0, len(resp.Messages))
			for _, m := range resp.Messages {
				texts = append(texts, m.Message)
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":    "invalid request",
				"code":     "invalid_request",
				"messages": texts,
			})
			return
		}
		http.Redirect(w, r, resp.Location(), http.StatusFound)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func wantsJSON(r *http.Request) bool {
	for _, h := range []string{r.Header.Get("Accept"), r.Header.Get("Content-Type")} {
		for _, part := range strings.Split(h, ",") {
			if mt, _, err := mime.ParseMediaType(strings.TrimSpace(part)); err == nil && mt == "application/json" {
				return true
			}
		}
	}
	return false
}
