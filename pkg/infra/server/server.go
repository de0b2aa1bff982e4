// Package server manages the HTTP server lifecycle.
//
// The Manager owns a gin engine with the configured middleware chain
// applied at construction, so every route group registered afterwards
// inherits it. Start binds the listener synchronously; a port conflict
// is reported by Start instead of surfacing later from a goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/scholar-x/pkg/infra/middleware"
	apierrors "github.com/kart-io/scholar-x/pkg/utils/errors"
	"github.com/kart-io/scholar-x/pkg/utils/response"
)

// Manager owns the HTTP server and its graceful shutdown.
type Manager struct {
	opts     *Options
	engine   *gin.Engine
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	started bool
}

// NewManager creates a server manager with the given options applied.
func NewManager(opts ...Option) *Manager {
	o := NewOptions()
	for _, opt := range opts {
		opt(o)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Build(o.Middleware)...)

	engine.NoRoute(func(c *gin.Context) {
		resp := response.Err(apierrors.ErrRouteNotFound).WithRequestID(middleware.GetRequestID(c))
		c.JSON(resp.HTTPStatus(), resp)
	})

	return &Manager{
		opts:   o,
		engine: engine,
	}
}

// Engine returns the gin engine for route registration.
func (m *Manager) Engine() *gin.Engine {
	return m.engine
}

// Addr returns the bound listener address, or the configured address
// before Start.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.opts.HTTP.Addr
}

// Start binds the listener and begins serving in the background.
func (m *Manager) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("server manager already started")
	}

	ln, err := net.Listen("tcp", m.opts.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.opts.HTTP.Addr, err)
	}
	m.listener = ln

	m.server = &http.Server{
		Handler:      m.engine,
		ReadTimeout:  m.opts.HTTP.ReadTimeout,
		WriteTimeout: m.opts.HTTP.WriteTimeout,
		IdleTimeout:  m.opts.HTTP.IdleTimeout,
	}

	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("HTTP server stopped unexpectedly", "error", err)
		}
	}()

	m.started = true
	logger.Infow("HTTP server started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the server down gracefully, waiting for in-flight requests
// until ctx expires.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.server == nil {
		return nil
	}
	m.started = false

	if err := m.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

// Run starts the server and blocks until SIGINT or SIGTERM, then shuts
// down gracefully within the configured timeout.
func (m *Manager) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout)
	defer shutdownCancel()

	return m.Stop(shutdownCtx)
}
