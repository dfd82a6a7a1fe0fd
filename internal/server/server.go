package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"assistant-router/internal/config"
	"assistant-router/internal/critique"
	"assistant-router/internal/document"
	"assistant-router/internal/provider"
	"assistant-router/internal/router"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	maxAudioBytes       = 25 << 20
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 45 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	mu  sync.RWMutex
	cfg config.Config

	router   *router.Router
	critique *critique.Orchestrator
	catalog  *provider.Catalog
	docs     *document.Store
	app      *echo.Echo
	address  string
}

// New constructs an HTTP server wired with routing and middleware. A nil
// orchestrator is built from rt with real timers.
func New(cfg config.Config, rt *router.Router, orch *critique.Orchestrator) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	catalog, err := router.BuildCatalog(cfg)
	if err != nil {
		return nil, err
	}
	if orch == nil {
		orch = critique.New(rt, nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
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
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:      cfg,
		router:   rt,
		critique: orch,
		catalog:  catalog,
		docs:     document.NewStore(),
		app:      e,
		address:  fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the echo instance, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// UpdateConfig replaces the configuration used by subsequent requests.
// Requests already running keep the snapshot they started with.
func (s *Server) UpdateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func (s *Server) snapshot() config.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Snapshot()
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
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
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/v1/models", s.handleModels)

	s.app.POST("/v1/chat", s.handleChat)
	s.app.GET("/v1/chat/ws", s.handleChatSocket)

	s.app.POST("/v1/documents", s.handleCreateDocument)
	s.app.GET("/v1/documents/:id", s.handleGetDocument)
	s.app.DELETE("/v1/documents/:id", s.handleDeleteDocument)
	s.app.POST("/v1/documents/:id/prompt", s.handlePrompt)

	s.app.POST("/v1/images", s.handleImages)
	s.app.POST("/v1/audio/transcriptions", s.handleTranscription)
	s.app.POST("/v1/audio/speech", s.handleSpeech)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// clearWriteDeadline lifts the server write timeout for handlers that wait on
// a backend or stream for longer than it allows.
func clearWriteDeadline(c echo.Context) {
	if err := http.NewResponseController(c.Response()).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("write deadline not adjustable", "err", err)
	}
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("assistant-router ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET    /health")
	fmt.Println("  GET    /v1/models")
	fmt.Println("  POST   /v1/chat")
	fmt.Println("  GET    /v1/chat/ws")
	fmt.Println("  POST   /v1/documents")
	fmt.Println("  GET    /v1/documents/:id")
	fmt.Println("  DELETE /v1/documents/:id")
	fmt.Println("  POST   /v1/documents/:id/prompt")
	fmt.Println("  POST   /v1/images")
	fmt.Println("  POST   /v1/audio/transcriptions")
	fmt.Println("  POST   /v1/audio/speech")
	fmt.Printf("Example:\n  curl http://%s:%d/v1/chat -H 'Content-Type: application/json' -d '{\"model\":\"claude-sonnet-4-20250514\",\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port)
}
