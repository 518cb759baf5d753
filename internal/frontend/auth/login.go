package auth

import (
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/audit"
	"github.com/marcus-qen/monfront/internal/frontend/users"
	"github.com/marcus-qen/monfront/internal/metrics"
	"go.uber.org/zap"
)

// LoginOptions configures the login and logout handlers.
type LoginOptions struct {
	// SecureCookie sets the Secure flag on the session cookie.
	SecureCookie bool
	// Limiter throttles attempts per client address; nil disables it.
	Limiter *RateLimiter
	Auditor audit.Recorder
	Logger  *zap.Logger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User      *AuthenticatedUser `json:"user"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// HandleLogin processes a username/password login sent as a form or JSON.
func HandleLogin(userAuth UserAuthenticator, sessions SessionCreator, opts LoginOptions) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if userAuth == nil || sessions == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "login_unavailable", "login unavailable")
			return
		}

		remote := clientAddr(r)
		if opts.Limiter != nil && !opts.Limiter.Allow(remote) {
			metrics.RecordLogin("rate_limited")
			metrics.RecordRateLimited("login", "anonymous")
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}

		creds, err := readCredentials(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid login form")
			return
		}
		if creds.Username == "" || creds.Password == "" {
			writeJSONError(w, http.StatusUnauthorized, "invalid_credentials", "username and password are required")
			return
		}

		user, err := userAuth.Authenticate(creds.Username, creds.Password)
		if err != nil || user == nil {
			result, msg := "failure", "invalid username or password"
			if errors.Is(err, users.ErrUserDisabled) {
				result, msg = "disabled", "account disabled"
			} else if err != nil && !errors.Is(err, users.ErrInvalidCredentials) {
				logger.Error("authenticate", zap.String("username", creds.Username), zap.Error(err))
			}
			metrics.RecordLogin(result)
			record(opts.Auditor, audit.Event{
				Type:    audit.EventLoginFailed,
				Actor:   creds.Username,
				Summary: "Login failed for " + creds.Username,
				Detail:  map[string]string{"reason": result, "remote_addr": remote},
			})
			writeJSONError(w, http.StatusUnauthorized, "invalid_credentials", msg)
			return
		}

		sess, err := sessions.Create(user.ID)
		if err != nil {
			logger.Error("create session", zap.String("user_id", user.ID), zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "session_error", "failed to create session")
			return
		}

		metrics.RecordLogin("success")
		record(opts.Auditor, audit.Event{
			Type:    audit.EventLoginSuccess,
			Actor:   user.Username,
			Summary: "Login succeeded for " + user.Username,
			Detail:  map[string]string{"user_id": user.ID, "remote_addr": remote},
		})

		maxAge := int(time.Until(sess.ExpiresAt).Seconds())
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   opts.SecureCookie,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   maxAge,
			Expires:  sess.ExpiresAt,
		})
		writeJSON(w, http.StatusOK, loginResponse{
			User:      NewAuthenticatedUser(user, sess),
			ExpiresAt: sess.ExpiresAt,
		})
	}
}

// HandleLogout invalidates current session and clears the session cookie.
func HandleLogout(sessions SessionDeleter, opts LoginOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" && sessions != nil {
			_ = sessions.Delete(cookie.Value)
		}
		if user := UserFromContext(r.Context()); user != nil {
			record(opts.Auditor, audit.Event{
				Type:    audit.EventLogout,
				Actor:   user.Username,
				Summary: "Logout for " + user.Username,
			})
		}

		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   opts.SecureCookie,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleMe returns the current session identity.
func HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func readCredentials(r *http.Request) (loginRequest, error) {
	var creds loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			return creds, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return creds, err
		}
		creds.Username = r.FormValue("username")
		creds.Password = r.FormValue("password")
	}
	creds.Username = strings.TrimSpace(creds.Username)
	return creds, nil
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func record(rec audit.Recorder, evt audit.Event) {
	if rec != nil {
		rec.Record(evt)
	}
}
