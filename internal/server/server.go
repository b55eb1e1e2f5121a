package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/skedge/skedge/internal/availability"
	"github.com/skedge/skedge/internal/directory"
)

const (
	// DefaultAddr is the default address for the API server.
	DefaultAddr = ":8080"

	// DefaultReadHeaderTimeout bounds how long a client may take to send
	// request headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// AvailabilityService computes shared free periods for a set of participants.
type AvailabilityService interface {
	FindAvailability(ctx context.Context, req availability.Request) (*availability.Result, error)
}

// RegistrationService drives the OAuth registration lifecycle.
type RegistrationService interface {
	StartRegistration(ctx context.Context, userID, email string) (string, error)
	CompleteRegistration(ctx context.Context, correlationToken, code string) (*directory.Credential, error)
	Unregister(ctx context.Context, userID string) error
	ListRegistered(ctx context.Context) ([]*directory.Credential, error)
}

// Config holds configuration for the API server.
type Config struct {
	// Addr is the address to bind to (e.g., ":8080").
	Addr string

	// RequestTimeout bounds the total handling time of one request.
	RequestTimeout time.Duration

	// Logger is used for request logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the main API server.
type Server struct {
	availability  AvailabilityService
	registrations RegistrationService
	health        *HealthChecker
	logger        *slog.Logger

	httpServer *http.Server
	addr       string
	timeout    time.Duration
}

// New creates an API server over the given services.
func New(avail AvailabilityService, reg RegistrationService, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{
		availability:  avail,
		registrations: reg,
		health:        NewHealthChecker(),
		logger:        cfg.Logger,
		addr:          cfg.Addr,
		timeout:       cfg.RequestTimeout,
	}
}

// Health returns the server's health checker, so the process lifecycle can
// flip readiness during startup and shutdown.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.timeout))

	r.Get("/healthz", s.health.LivenessHandler())
	r.Get("/readyz", s.health.ReadinessHandler())

	r.Get("/oauth/callback", s.handleOAuthCallback)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/availability", s.handleAvailability)
		r.Route("/registrations", func(r chi.Router) {
			r.Post("/", s.handleStartRegistration)
			r.Get("/", s.handleListRegistrations)
			r.Delete("/{userID}", s.handleUnregister)
		})
	})

	return r
}

// Start starts the API server in a blocking manner.
// Call this in a goroutine if you need non-blocking operation.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	s.logger.Info("starting api server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.httpServer != nil {
		s.logger.Info("shutting down api server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}
