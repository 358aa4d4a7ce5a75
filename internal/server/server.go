// Package server implements the intake handler: the HTTP surface that
// receives provider webhook callbacks and drives them through
// authentication, deduplication, and storage.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/chainhook/forwarder/internal/auth"
	"github.com/chainhook/forwarder/internal/constants"
	"github.com/chainhook/forwarder/internal/dedup"
	"github.com/chainhook/forwarder/internal/eventdb"
	"github.com/chainhook/forwarder/internal/metrics"
	"github.com/chainhook/forwarder/internal/middleware"
)

// EventStore is the subset of eventdb.EventDB the server depends on.
type EventStore interface {
	Store(ctx context.Context, event *eventdb.StoredEvent) error
	RecentEvents(ctx context.Context, provider string) ([]eventdb.StoredEvent, error)
	CheckHealth(ctx context.Context) error
}

// Authenticator verifies the signature on an incoming request body and, when
// enabled, the request's source address against a configured allowlist.
type Authenticator interface {
	Verify(provider string, header http.Header, body []byte, sourceAddr netip.Addr) auth.Result
}

// Deduplicator decides whether a hash has already been processed.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, provider, hash string) (bool, error)
	Mark(provider, hash string)
}

// Server is the intake handler. It owns no transport concerns beyond
// building an http.Handler; listening and lifecycle are the caller's job.
// Source-address allowlisting lives in the Authenticator, not here, so it
// only ever gates requests when authentication is enabled.
type Server struct {
	auth    Authenticator
	dedup   Deduplicator
	store   EventStore
	log     *slog.Logger
	metrics *metrics.Metrics
	maxBody int64
}

// Option configures a Server.
type Option func(*Server)

// WithMaxBodyBytes overrides the default intake body size cap.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// New builds a Server from its collaborators.
func New(authenticator Authenticator, deduplicator Deduplicator, store EventStore, m *metrics.Metrics, log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		auth:    authenticator,
		dedup:   deduplicator,
		store:   store,
		log:     log,
		metrics: m,
		maxBody: constants.DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the server's routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+constants.IntakePathPrefix+"{provider}", s.handleIntake)
	mux.HandleFunc("GET "+constants.IntakePathPrefix+"{provider}/events", s.handleRecentEvents)
	mux.HandleFunc("GET "+constants.PingPath, s.handlePing)
	mux.Handle("GET "+constants.MetricsPath, s.metrics.Handler())
	return s.logRequests(mux)
}

// logRequests wraps next with a request-level access log, recording the
// response status via a middleware.ResponseRecorder.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := middleware.NewResponseRecorder(w)
		next.ServeHTTP(rec, r)
		s.log.Debug("handled request", "method", r.Method, "path", r.URL.Path, "status", rec.Status)
	})
}
