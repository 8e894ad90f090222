package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"aihub-gateway/internal/config"
	"aihub-gateway/internal/dispatch"
	"aihub-gateway/internal/store"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	cfg        config.Config
	dispatcher *dispatch.Dispatcher
	sessions   store.Store
	app        *echo.Echo
	address    string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, dispatcher *dispatch.Dispatcher, sessions store.Store) (*Server, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("session store must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apiErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	// Dev UIs connect from arbitrary origins; mirrors the permissive
	// posture of the original backend.
	e.Use(middleware.CORS())
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:  true,
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))

	if cfg.Server.APIKey != "" {
		e.Use(keyAuthMiddleware(cfg.Server.APIKey))
	}

	srv := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		sessions:   sessions,
		app:        e,
		address:    fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server", "addr", s.address, "storage", s.cfg.Storage.Driver)

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	api := s.app.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/chat", s.handleChat)
	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions", s.handleListSessions)
	api.GET("/sessions/:id", s.handleGetSession)
	api.PATCH("/sessions/:id", s.handleUpdateSession)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
	api.POST("/sessions/:id/messages", s.handleSessionMessage)
}

// keyAuthMiddleware rejects requests whose X-API-Key header does not match
// the configured key, before any handler (and so any adapter) runs. The
// health endpoint stays open for liveness checks.
func keyAuthMiddleware(apiKey string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:X-API-Key",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/health"
		},
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return requestError{
				Status:  http.StatusUnauthorized,
				Message: "invalid API key",
				Type:    "authentication_error",
			}
		},
	})
}
