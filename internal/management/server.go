// Package management implements the loopback HTTP admin surface for
// runtime endpoint administration, with rate limiting and audit logging
// composed as middleware around every handler.
package management

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nanoagent/nanoagent/internal/audit"
	"github.com/nanoagent/nanoagent/internal/config"
	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/ratelimit"
	"github.com/nanoagent/nanoagent/internal/security"
	"go.uber.org/zap"
)

// StatusProvider reports each configured endpoint's live connection state,
// supplied by AgentRuntime.
type StatusProvider func() []model.EndpointStatus

// Server is the loopback HTTP admin surface.
type Server struct {
	BindAddr       string
	APIToken       string
	ConfigPath     string
	Version        string
	Cfg            *config.Config
	// ConfigMu serializes every read/write of Cfg. AgentRuntime shares the
	// same lock for its own status snapshots, so a server-list edit never
	// races a concurrent reader.
	ConfigMu       *sync.RWMutex
	Status         StatusProvider
	Events         chan Event
	Limiter        *ratelimit.Limiter
	Audit          *audit.Sink
	Log            *zap.SugaredLogger

	httpServer *http.Server
}

// ListenAndServe builds the mux and blocks serving on BindAddr until the
// server is shut down.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.wrap(s.handleHealth))
	mux.HandleFunc("/api/config", s.wrap(s.handleConfig))
	mux.HandleFunc("/api/servers", s.wrap(s.handleServers))
	mux.HandleFunc("/api/servers/update", s.wrap(s.handleServersUpdate))

	s.httpServer = &http.Server{Addr: s.BindAddr, Handler: mux}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// wrap composes audit logging, rate limiting, and bearer-token auth around a
// handler, in that order: an unauthenticated or rate-limited request is still
// audited with its resulting status.
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := clientIP(r)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if s.Audit != nil {
				s.Audit.Write(ip, r.URL.Path, r.Method, bearerToken(r), nil, rec.status, time.Since(start))
			}
		}()

		if s.Limiter != nil {
			if ok, retryAfter := s.Limiter.Allow(ip, r.URL.Path); !ok {
				rec.Header().Set("Retry-After", strconv.FormatInt(retryAfter.Milliseconds(), 10))
				writeJSON(rec, http.StatusTooManyRequests, map[string]any{
					"error":          "rate limit exceeded",
					"retry_after_ms": retryAfter.Milliseconds(),
				})
				return
			}
		}

		if s.APIToken != "" {
			if !security.ConstantTimeEqualString(bearerToken(r), s.APIToken) {
				writeJSON(rec, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
				return
			}
		}

		h(rec, r)
	}
}

// lockConfig takes the shared config write lock if one was supplied,
// returning the matching unlock. Tests that construct a bare Server without
// a runtime get no-op locking.
func (s *Server) lockConfig() func() {
	if s.ConfigMu == nil {
		return func() {}
	}
	s.ConfigMu.Lock()
	return s.ConfigMu.Unlock
}

func (s *Server) rlockConfig() func() {
	if s.ConfigMu == nil {
		return func() {}
	}
	s.ConfigMu.RLock()
	return s.ConfigMu.RUnlock
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
