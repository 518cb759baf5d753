// Package server assembles the front end: stores, remote API client, action
// registry and the HTTP routes in front of them.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/actions"
	"github.com/marcus-qen/monfront/internal/frontend/apiclient"
	"github.com/marcus-qen/monfront/internal/frontend/audit"
	"github.com/marcus-qen/monfront/internal/frontend/auth"
	"github.com/marcus-qen/monfront/internal/frontend/config"
	"github.com/marcus-qen/monfront/internal/frontend/dbutil"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/frontend/session"
	"github.com/marcus-qen/monfront/internal/frontend/users"
	"github.com/marcus-qen/monfront/internal/logging"
	"github.com/marcus-qen/monfront/internal/shared/ratelimit"
	"github.com/marcus-qen/monfront/internal/shared/signing"
	"go.uber.org/zap"
)

// Version info injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Server is the assembled front end.
type Server struct {
	cfg    config.Config
	logger *zap.Logger

	db             *dbutil.DB
	userStore      *users.Store
	sessionStore   *session.Store
	sessionCleaner *session.Cleaner
	auditStore     *audit.Store

	api      *apiclient.Client
	registry *mvc.Registry
	signer   *signing.Signer
	location *time.Location

	loginLimiter    *auth.RateLimiter
	dispatchLimiter *ratelimit.Limiter

	httpServer *http.Server
}

// New builds a fully wired Server from cfg. The caller must Close it.
func New(cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		location: loc,
	}

	for _, step := range []func() error{
		s.initStore,
		s.initAuth,
		s.initAudit,
		s.initSigner,
		s.initActions,
	} {
		if err := step(); err != nil {
			s.Close()
			return nil, err
		}
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	rl := auth.NewUserRateLimiter(auth.UserRateLimitConfig{
		Enabled:                cfg.RateLimit.Enabled,
		UserRequestsPerMinute:  cfg.RateLimit.RequestsPerMinute,
		UserBurst:              cfg.RateLimit.Burst,
		AdminRequestsPerMinute: cfg.RateLimit.AdminRequestsPerMinute,
		AdminBurst:             cfg.RateLimit.AdminBurst,
	})
	authMiddleware := auth.NewMiddleware(s.sessionStore, s.userStore, logger.Named("auth"), []string{
		"/healthz",
		"/version",
		"/metrics",
		"/login",
	})

	var handler http.Handler = mux
	handler = rl.Wrap(handler)
	handler = authMiddleware.Wrap(handler)
	handler = maxBodySizeMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.sessionCleaner.Start()
	go s.auditStore.PurgeLoop(ctx, s.cfg.Audit.Retention.Std(), s.cfg.Audit.PurgeInterval.Std())

	s.logger.Info("starting front end",
		zap.String("addr", s.cfg.ListenAddr),
		zap.String("version", Version),
		zap.String("db_driver", s.db.Driver()),
		zap.String("api_url", s.cfg.API.URL),
		zap.Bool("tls", s.cfg.HasTLS()),
		zap.Strings("actions", s.registry.Actions()),
	)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.HasTLS() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the root HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Close releases all resources.
func (s *Server) Close() {
	if s.sessionCleaner != nil {
		s.sessionCleaner.Stop()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("close database", zap.Error(err))
		}
	}
}

// ── Init helpers ─────────────────────────────────────────────

func (s *Server) initStore() error {
	driver := s.cfg.Database.Driver
	if (driver == "" || driver == dbutil.DriverSQLite) && s.cfg.Database.DSN == "" {
		if err := os.MkdirAll(s.cfg.DataDir, 0750); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := dbutil.Open(driver, s.cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	s.db = db
	s.logger.Info("database opened", zap.String("driver", db.Driver()))
	return nil
}

func (s *Server) initAuth() error {
	userStore, err := users.NewStore(s.db)
	if err != nil {
		return err
	}
	s.userStore = userStore

	username := s.cfg.Bootstrap.AdminUsername
	if username == "" {
		username = "admin"
	}
	password := s.cfg.Bootstrap.AdminPassword
	generated := password == ""
	if generated {
		password = generateBootstrapPassword()
	}
	created, err := userStore.EnsureAdmin(username, password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		fields := []zap.Field{zap.String("username", username), zap.String("role", users.RoleSuperAdmin)}
		if generated {
			fields = append(fields, zap.String("password", password))
		}
		s.logger.Info("bootstrap admin user created", fields...)
	}

	sessionStore, err := session.NewStore(s.db, s.cfg.Session.Lifetime.Std())
	if err != nil {
		return err
	}
	s.sessionStore = sessionStore

	cleaner, err := session.NewCleaner(sessionStore, s.cfg.Session.CleanupSchedule, s.logger.Named("session"))
	if err != nil {
		return err
	}
	s.sessionCleaner = cleaner

	if n := s.cfg.RateLimit.LoginAttemptsPerMinute; n > 0 {
		s.loginLimiter = auth.NewRateLimiter(n, time.Minute)
	}
	return nil
}

func (s *Server) initAudit() error {
	store, err := audit.NewStore(s.db, s.cfg.Audit.MemoryLimit, s.logger.Named("audit"))
	if err != nil {
		return err
	}
	s.auditStore = store
	return nil
}

// initSigner uses the configured key or generates one. A generated key does
// not survive a restart, so redirects issued before it are rejected.
func (s *Server) initSigner() error {
	key, err := s.cfg.SigningKeyBytes()
	if err != nil {
		return err
	}
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate signing key: %w", err)
		}
		s.logger.Info("form data signing enabled (auto-generated key)",
			zap.String("key_hex", hex.EncodeToString(key)))
	}
	s.signer = signing.NewSigner(signing.DeriveKey(key, "formdata"))
	return nil
}

func (s *Server) initActions() error {
	client, err := apiclient.New(apiclient.Options{
		URL:     s.cfg.API.URL,
		Token:   s.cfg.API.Token,
		Timeout: s.cfg.API.Timeout.Std(),
		Logger:  logging.Logr(s.logger.Named("api")),
	})
	if err != nil {
		return err
	}
	s.api = client

	s.dispatchLimiter = ratelimit.NewLimiter(ratelimit.Config{
		MaxConcurrent:        s.cfg.RateLimit.MaxConcurrentDispatches,
		MaxConcurrentPerUser: s.cfg.RateLimit.MaxConcurrentDispatchesPerUser,
		MaxPerHourPerUser:    s.cfg.RateLimit.MaxDispatchesPerHourPerUser,
	})

	s.registry = mvc.NewRegistry()
	return actions.Register(s.registry, actions.Deps{
		Services:     client.Services(),
		Correlations: client.Correlations(),
		MaxPeriod:    s.cfg.MaxPeriod,
		Location:     s.location,
	})
}

func generateBootstrapPassword() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:24]
}
