// Package gateway exposes the runtime over HTTP and WebSocket: synchronous
// queries, streaming queries, session administration, and health.
package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/escape-velocity-ventures/orbit/internal/observability"
	"github.com/escape-velocity-ventures/orbit/pkg/runtime"
	"github.com/escape-velocity-ventures/orbit/pkg/session"
	"github.com/escape-velocity-ventures/orbit/pkg/transport"
)

// Server is the gateway HTTP/WebSocket server
type Server struct {
	host         string
	port         int
	sharedSecret string

	runtime  *runtime.Runtime
	sessions *session.Manager
	router   *transport.Router
	logger   zerolog.Logger

	server       *http.Server
	upgrader     websocket.Upgrader
	inFlightReqs sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Runtime      *runtime.Runtime
	Sessions     *session.Manager
	Router       *transport.Router
	Logger       zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("runtime is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("transport router is required")
	}

	return &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		runtime:      cfg.Runtime,
		sessions:     cfg.Sessions,
		router:       cfg.Router,
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Start starts serving in a background goroutine
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.authenticated(s.handleWebSocket))
	mux.HandleFunc("/query", s.authenticated(s.handleQuery))
	mux.HandleFunc("/tools", s.authenticated(s.handleTools))
	mux.HandleFunc("/sessions", s.authenticated(s.handleSessions))
	mux.HandleFunc("/sessions/", s.authenticated(s.handleSessionByID))
	mux.HandleFunc("/endpoints/health", s.authenticated(s.handleEndpointHealth))
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the listener down
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.logger.Warn().Msg("Timed out waiting for in-flight requests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// authenticated enforces the bearer shared secret when one is configured.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sharedSecret != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.sharedSecret)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
		}
		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()
		next(w, r)
	}
}
