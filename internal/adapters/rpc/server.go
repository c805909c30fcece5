// Package rpc is the daemon's local control surface: JSON-RPC 2.0 over HTTP
// on the loopback interface. It exposes the session lifecycle plus the
// signing and verification operations; everything that talks to peers
// (message transport, UI) lives outside this process and calls in here.
package rpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drift-chat/go-backend/internal/config"
	"drift-chat/go-backend/internal/platform/ratelimiter"
	"drift-chat/go-backend/internal/session"
)

const DefaultAddr = "127.0.0.1:8797"

const tokenEnv = "DRIFT_RPC_TOKEN"

type Server struct {
	httpServer *http.Server
	sessions   *session.Manager
	rpcToken   string
	limiter    *ratelimiter.Limiter
}

// NewServer wires the RPC transport around a session manager. A token in
// DRIFT_RPC_TOKEN is required from every client when set.
func NewServer(cfg config.Config, sessions *session.Manager) *Server {
	addr := cfg.RPC.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	var limiter *ratelimiter.Limiter
	if cfg.RPC.RateLimitEnabled == nil || *cfg.RPC.RateLimitEnabled {
		limiter = ratelimiter.New(cfg.RPC.RateLimitRPS, cfg.RPC.RateLimitBurst, cfg.RPC.RateLimitIdleTTL.Std())
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		sessions: sessions,
		rpcToken: strings.TrimSpace(os.Getenv(tokenEnv)),
		limiter:  limiter,
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Handler exposes the mux for tests driving the server without a listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.rpcToken == "" {
		return true
	}
	token := strings.TrimSpace(r.Header.Get("X-Drift-RPC-Token"))
	if token == "" {
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token != s.rpcToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
