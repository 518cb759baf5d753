package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/audit"
	"github.com/marcus-qen/monfront/internal/frontend/auth"
	"github.com/marcus-qen/monfront/internal/frontend/csrf"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/frontend/users"
	"github.com/marcus-qen/monfront/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health + version
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", metrics.Handler())

	// Login/session
	loginOpts := auth.LoginOptions{
		SecureCookie: s.cfg.Session.SecureCookie,
		Limiter:      s.loginLimiter,
		Auditor:      s.auditStore,
		Logger:       s.logger.Named("login"),
	}
	mux.HandleFunc("POST /login", auth.HandleLogin(s.userStore, s.sessionStore, loginOpts))
	mux.HandleFunc("POST /logout", auth.HandleLogout(s.sessionStore, loginOpts))
	mux.HandleFunc("GET /me", auth.HandleMe())
	mux.HandleFunc("GET /csrf", s.handleCSRFToken)

	// Actions
	mux.HandleFunc("GET /action", s.handleAction)
	mux.HandleFunc("POST /action", s.handleAction)

	// Audit
	mux.HandleFunc("GET /audit", s.withRule(auth.RuleAuditLog, s.handleAuditLog))
	mux.HandleFunc("GET /audit/export", s.withRule(auth.RuleAuditLog, s.handleAuditExportJSONL))

	// User management
	mux.HandleFunc("GET /users", s.withUserType(mvc.UserTypeSuperAdmin, s.handleListUsers))
	mux.HandleFunc("POST /users", s.withUserType(mvc.UserTypeSuperAdmin, s.handleCreateUser))
	mux.HandleFunc("PATCH /users/{id}", s.withUserType(mvc.UserTypeSuperAdmin, s.handleUpdateUser))
	mux.HandleFunc("DELETE /users/{id}", s.withUserType(mvc.UserTypeSuperAdmin, s.handleDeleteUser))
}

func (s *Server) withRule(rule string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		if user == nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		if !user.CheckAccess(rule) {
			writeJSONError(w, http.StatusForbidden, "access_denied", "access denied")
			return
		}
		next(w, r)
	}
}

func (s *Server) withUserType(minType mvc.UserType, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		if user == nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		if user.Type() < minType {
			writeJSONError(w, http.StatusForbidden, "access_denied", "access denied")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "database_unavailable", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": Version, "commit": Commit, "date": Date,
	})
}

// handleCSRFToken returns the anti-forgery token the caller's session needs
// to run an action.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	if _, ok := csrf.Domain(action); !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "action has no signing domain")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"action":       action,
		csrf.TokenName: user.CSRF().TokenForAction(action),
	})
}

// ── Audit ────────────────────────────────────────────────────

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	events, err := s.auditStore.QueryPersisted(filter)
	if err != nil {
		s.logger.Warn("query audit events", zap.Error(err))
		events = s.auditStore.Query(filter)
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  s.auditStore.Count(),
	})
}

func (s *Server) handleAuditExportJSONL(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if r.URL.Query().Get("limit") == "" {
		filter.Limit = 0
	}

	filename := fmt.Sprintf("monfront-audit-%s.jsonl", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := s.auditStore.StreamJSONL(r.Context(), w, filter); err != nil {
		s.logger.Warn("stream audit jsonl export failed", zap.Error(err))
	}
}

func auditFilterFromRequest(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		Action: strings.TrimSpace(q.Get("action")),
		Actor:  strings.TrimSpace(q.Get("actor")),
		Type:   audit.EventType(strings.TrimSpace(q.Get("type"))),
		Limit:  defaultAuditLimit,
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = min(n, maxAuditLimit)
	}
	for name, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("invalid %s: expected RFC3339 time", name)
		}
		*dst = t
	}
	return f, nil
}

// ── User management ──────────────────────────────────────────

type createUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type updateUserRequest struct {
	Role     *string `json:"role,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
	Debug    *bool   `json:"debug_mode,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.userStore.List()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if list == nil {
		list = []users.User{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}
	if req.Role == "" {
		req.Role = users.RoleUser
	}

	u, err := s.userStore.Create(req.Username, req.DisplayName, req.Password, req.Role)
	if err != nil {
		s.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if _, err := s.userStore.Get(id); err != nil {
		s.writeUserError(w, err)
		return
	}

	revoke := false
	steps := []func() error{}
	if req.Role != nil {
		steps = append(steps, func() error { return s.userStore.UpdateRole(id, *req.Role) })
		revoke = true
	}
	if req.Enabled != nil {
		steps = append(steps, func() error { return s.userStore.SetEnabled(id, *req.Enabled) })
		revoke = revoke || !*req.Enabled
	}
	if req.Debug != nil {
		steps = append(steps, func() error { return s.userStore.SetDebug(id, *req.Debug) })
	}
	if req.Password != nil {
		steps = append(steps, func() error { return s.userStore.UpdatePassword(id, *req.Password) })
		revoke = true
	}
	for _, step := range steps {
		if err := step(); err != nil {
			s.writeUserError(w, err)
			return
		}
	}

	if revoke {
		if err := s.sessionStore.DeleteByUser(id); err != nil {
			s.logger.Warn("revoke sessions", zap.String("user_id", id), zap.Error(err))
		}
	}

	u, err := s.userStore.Get(id)
	if err != nil {
		s.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if current := auth.UserFromContext(r.Context()); current != nil && current.UserID == id {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "cannot delete the current user")
		return
	}
	if err := s.userStore.Delete(id); err != nil {
		s.writeUserError(w, err)
		return
	}
	if err := s.sessionStore.DeleteByUser(id); err != nil {
		s.logger.Warn("revoke sessions", zap.String("user_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, users.ErrUsernameAlreadyUsed):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, users.ErrInvalidRole):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error("user store", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
