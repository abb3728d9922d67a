package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatstream/internal/config"
	"chatstream/internal/core"
	"chatstream/internal/core/engine"
	"chatstream/internal/pkg/logger"
)

// Server exposes the dispatcher over HTTP for the chat UI
type Server struct {
	cfg        config.ServerConfig
	router     *gin.Engine
	dispatcher *core.Dispatcher
	routes     *engine.Engine
	registry   *core.Registry
	log        *logger.Logger
}

// New creates a new Server instance
func New(cfg config.ServerConfig, dispatcher *core.Dispatcher, routes *engine.Engine, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewLogger(nil)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log), cors())

	s := &Server{
		cfg:        cfg,
		router:     router,
		dispatcher: dispatcher,
		routes:     routes,
		registry:   core.NewRegistry(),
		log:        log,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/", s.banner)

	api := s.router.Group("/v1")
	api.GET("/providers", s.listProviders)
	api.POST("/chat/completions", s.chatCompletions)
	api.DELETE("/generations/:id", s.cancelGeneration)
}

// Handler returns the HTTP handler, used directly by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the in-flight generation registry
func (s *Server) Registry() *core.Registry {
	return s.registry
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.cfg.Addr(),
		Handler:     s.router,
		ReadTimeout: s.cfg.ReadTimeout,
		IdleTimeout: s.cfg.IdleTimeout,
		// No WriteTimeout: streamed replies outlive any fixed deadline.
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting chatstream", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server...", zap.Int("active_generations", s.registry.Len()))

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
