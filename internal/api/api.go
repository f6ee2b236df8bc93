// Package api provides a small read-only management surface over the
// proxy's active sessions, using Gin the way the teacher's own
// management API does (spec.md §4.8 / SPEC_FULL.md's management API
// addendum).
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wlkek/raknet-mitm-proxy/internal/proxyserver"
)

// SessionLister is satisfied by *proxyserver.Server; it exists so the
// API package can be tested without standing up a real UDP listener.
type SessionLister interface {
	Sessions() []proxyserver.SessionInfo
}

// Server hosts the read-only management endpoints. Its bind address is
// the one piece of its own configuration that reloads live
// (SPEC_FULL.md §4.9); Rebind swaps the listening *http.Server without
// restarting the process.
type Server struct {
	router *gin.Engine

	mu  sync.Mutex
	srv *http.Server
}

// New builds a Server with GET /sessions, GET /metrics and GET
// /healthz registered. It has no mutating routes: it cannot kick a
// session, alter a config, or otherwise act on the proxy.
func New(addr string, sessions SessionLister, reg *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, sessions.Sessions())
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return &Server{
		router: router,
		srv:    &http.Server{Addr: addr, Handler: router},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, at
// which point it shuts the server down gracefully. A concurrent Rebind
// replaces the serving *http.Server; Run notices its current server was
// superseded and starts serving the new one in its place rather than
// returning.
func (s *Server) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		srv := s.srv
		s.mu.Unlock()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != http.ErrServerClosed {
				return err
			}
			s.mu.Lock()
			superseded := s.srv != srv
			s.mu.Unlock()
			if !superseded {
				return nil
			}
			// Rebind closed this server out from under us; loop and
			// serve the replacement.
		}
	}
}

// Rebind closes the currently listening server and starts a new one
// bound to addr, keeping the same router. Safe to call while Run is
// blocked serving the previous bind address.
func (s *Server) Rebind(addr string) error {
	s.mu.Lock()
	old := s.srv
	s.srv = &http.Server{Addr: addr, Handler: s.router}
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return old.Shutdown(shutdownCtx)
}
