// Package httpapi exposes the vault service over HTTP JSON: the auth
// surface, the profile endpoint, and the two sync contracts (change feed
// and push reconciler).
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/passwords-you-take-anywhere/server/internal/logging"
	"github.com/passwords-you-take-anywhere/server/internal/server/models"
	"github.com/passwords-you-take-anywhere/server/internal/server/services"
)

// UserService is the authentication surface consumed by the handlers.
type UserService interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context, userID string) (*services.Profile, error)
}

// SyncService is the sync engine surface consumed by the handlers.
type SyncService interface {
	GetChanges(ctx context.Context, userID string, since *time.Time, cursor string, limit int) ([]*models.Record, string, bool, error)
	PushChanges(ctx context.Context, userID string, creates, updates []*services.RecordUpsert, deletes []*services.RecordDelete) (*services.PushResult, error)
}

// Server serves the HTTP API.
type Server struct {
	addr      string
	logger    logging.Logger
	users     UserService
	sync      SyncService
	jwtSecret []byte
	validate  *validator.Validate
}

// NewServer constructs a Server; Run starts it.
func NewServer(addr string, logger logging.Logger, users UserService, sync SyncService, secretKey string) *Server {
	return &Server{
		addr:      addr,
		logger:    logger,
		users:     users,
		sync:      sync,
		jwtSecret: []byte(secretKey),
		validate:  validator.New(),
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/ping", s.handlePing)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/logout", s.handleLogout)

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireAuth)
		pr.Get("/me", s.handleMe)
		pr.Get("/sync/changes", s.handleChanges)
		pr.Post("/sync/push", s.handlePush)
	})

	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully. Timeouts guard against slow clients holding connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
