package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chainhook/forwarder/internal/constants"
	"github.com/chainhook/forwarder/internal/dedup"
	"github.com/chainhook/forwarder/internal/eventdb"
	"github.com/chainhook/forwarder/internal/metrics"
)

// intakeResponse is the wire shape of POST /webhook/{provider}, matching the
// documented bit-level-compatible response bodies.
type intakeResponse struct {
	Message   string `json:"message"`
	EventID   string `json:"eventId,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

// handleIntake implements the fixed pipeline: authenticate, deduplicate,
// store. It never interprets the event payload beyond extracting a
// best-effort event type for logging and storage.
func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	provider := strings.ToLower(r.PathValue("provider"))
	sourceAddr, _ := sourceAddress(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large or unreadable")
		s.observe(provider, metrics.OutcomeError, start)
		return
	}

	eventType := "unknown"
	if gjson.ValidBytes(body) {
		if v := gjson.GetBytes(body, "type"); v.Exists() {
			eventType = v.String()
		}
	} else {
		s.log.Warn("webhook body is not valid JSON", "provider", provider)
	}

	authResult := s.auth.Verify(provider, r.Header, body, sourceAddr)
	if !authResult.Authenticated {
		s.log.Warn("webhook authentication failed", "provider", provider, "reason", authResult.FailureReason)
		s.respondError(w, http.StatusUnauthorized, "signature verification failed")
		s.observe(provider, metrics.OutcomeUnauthorized, start)
		return
	}

	hash := dedup.ComputeHash(body)

	duplicate, err := s.dedup.IsDuplicate(r.Context(), provider, hash)
	if err != nil {
		s.log.Error("checking for duplicate event", "error", err, "provider", provider)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		s.observe(provider, metrics.OutcomeError, start)
		return
	}
	if duplicate {
		s.log.Info("webhook duplicate", "provider", provider, "event_type", eventType, "hash_prefix", hash[:8], "outcome", metrics.OutcomeDuplicate)
		s.respondJSON(w, http.StatusOK, intakeResponse{Message: "Event already processed", Duplicate: true})
		s.observe(provider, metrics.OutcomeDuplicate, start)
		return
	}

	event := &eventdb.StoredEvent{
		Provider:  provider,
		EventType: eventType,
		EventData: eventdb.JSON(body),
		EventHash: hash,
		SourceIP:  sourceAddr.String(),
		Headers:   marshalHeaders(r.Header),
	}

	if err := s.store.Store(r.Context(), event); err != nil {
		if errors.Is(err, eventdb.ErrDuplicate) {
			s.dedup.Mark(provider, hash)
			s.log.Info("webhook duplicate", "provider", provider, "event_type", eventType, "hash_prefix", hash[:8], "outcome", metrics.OutcomeDuplicate)
			s.respondJSON(w, http.StatusOK, intakeResponse{Message: "Event already processed", Duplicate: true})
			s.observe(provider, metrics.OutcomeDuplicate, start)
			return
		}
		s.log.Error("storing event", "error", err, "provider", provider)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		s.observe(provider, metrics.OutcomeError, start)
		return
	}

	s.dedup.Mark(provider, hash)
	s.log.Info("webhook stored",
		"provider", provider,
		"event_type", eventType,
		"hash_prefix", hash[:8],
		"outcome", metrics.OutcomeStored,
	)
	s.respondJSON(w, http.StatusOK, intakeResponse{Message: "Event stored", EventID: event.ID, Duplicate: false})
	s.observe(provider, metrics.OutcomeStored, start)
}

// handleRecentEvents serves the debug-only recent events listing.
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(r.PathValue("provider"))
	events, err := s.store.RecentEvents(r.Context(), provider)
	if err != nil {
		s.log.Error("listing recent events", "error", err, "provider", provider)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respondJSON(w, http.StatusOK, events)
}

// handlePing answers liveness and readiness probes.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if err := s.store.CheckHealth(r.Context()); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode("pong"); err != nil {
		s.log.Error("writing response", "error", err)
	}
}

func (s *Server) observe(provider string, outcome metrics.Outcome, start time.Time) {
	s.metrics.ObserveRequest(provider, outcome, time.Since(start).Seconds())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("writing response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func sourceAddress(r *http.Request) (netip.Addr, error) {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	host = strings.Trim(host, "[]")
	return netip.ParseAddr(host)
}

func marshalHeaders(header http.Header) eventdb.JSON {
	simplified := make(map[string]string, len(header))
	for k := range header {
		simplified[k] = header.Get(k)
	}
	data, err := json.Marshal(simplified)
	if err != nil {
		return eventdb.JSON("{}")
	}
	return eventdb.JSON(data)
}
