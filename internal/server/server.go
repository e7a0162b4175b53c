package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"deployhook/internal/config"
	"deployhook/internal/deploy"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout = 10 * time.Second
	HTTPIdleTimeout = 60 * time.Second

	// writeSlack is added to the deploy timeout so the outcome of a deploy
	// that used all of its time can still be written.
	writeSlack = 30 * time.Second
)

// Server represents the HTTP server
type Server struct {
	Config   *config.Config
	Deployer deploy.Deployer
	Logger   *slog.Logger
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, deployer deploy.Deployer, logger *slog.Logger) *Server {
	return &Server{
		Config:   cfg,
		Deployer: deployer,
		Logger:   logger,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDHeader)
	r.Use(PeerAddr)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.Logger))
	r.Use(middleware.Recoverer)

	// Anything but POST on the webhook path is indistinguishable from a missing route
	r.NotFound(s.HandleNotFound)
	r.MethodNotAllowed(s.HandleNotFound)

	if s.Config.RateLimit > 0 {
		r.With(NewWebhookRateLimitMiddleware(s.Config.RateLimit, s.Logger)).Post(s.Config.WebhookPath, s.HandleDeployWebhook)
	} else {
		r.Post(s.Config.WebhookPath, s.HandleDeployWebhook)
	}

	return r
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Config.Addr()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is cancelled, then shuts down
// gracefully, giving running deploys up to the deploy timeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: s.Config.DeployTimeout + writeSlack,
		IdleTimeout:  HTTPIdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.Logger.Handler(), slog.LevelWarn),
	}

	s.Logger.Info("Starting server", "addr", ln.Addr().String(), "webhook_path", s.Config.WebhookPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.DeployTimeout+writeSlack)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
