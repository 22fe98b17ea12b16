// Package api exposes the trust engine over REST/JSON plus a websocket
// event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/trustcore/internal/core"
	"github.com/ocx/trustcore/internal/engine"
	"github.com/ocx/trustcore/internal/events"
	"github.com/ocx/trustcore/internal/middleware"
	"github.com/ocx/trustcore/internal/webhooks"
)

// Subscriber is the live-event side of the bus the websocket stream needs.
// Both events.Bus and events.PubSubBus satisfy it.
type Subscriber interface {
	Subscribe(eventTypes ...string) chan *events.CloudEvent
	Unsubscribe(ch chan *events.CloudEvent)
}

// Server wires the trust engine into an HTTP surface.
type Server struct {
	engine  *engine.TrustEngine
	hooks   *webhooks.Registry
	keys    *KeyManager
	limiter *middleware.RateLimiter
	bus     Subscriber
	logger  *log.Logger
}

// NewServer builds the HTTP server. hooks and bus may be nil, which disables
// webhook management endpoints and the websocket stream respectively.
func NewServer(eng *engine.TrustEngine, hooks *webhooks.Registry, keys *KeyManager, bus Subscriber) *Server {
	if keys == nil {
		keys = NewKeyManager()
	}
	return &Server{
		engine:  eng,
		hooks:   hooks,
		keys:    keys,
		limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{}),
		bus:     bus,
		logger:  log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Router assembles all routes and middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// CORS Middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Agent-ID")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Use(s.loggingMiddleware)

	// Health check endpoint (required for Cloud Run)
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	if s.bus != nil {
		r.HandleFunc("/ws", s.handleEventStream)
		r.HandleFunc("/events", s.handleSSE).Methods("GET")
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.keys.AuthMiddleware)
	v1.Use(s.limiter.Middleware)

	// Identity
	v1.HandleFunc("/agents", s.handleRegisterAgent).Methods("POST")
	v1.HandleFunc("/agents/{id}", s.handleGetAgent).Methods("GET")
	v1.HandleFunc("/agents/{id}/rotate", s.handleRotateKey).Methods("POST")
	v1.HandleFunc("/agents/{id}/verify", s.handleVerifySignature).Methods("POST")
	v1.HandleFunc("/agents/{id}/proofs", s.handleSubmitProof).Methods("POST")

	// Scores
	v1.HandleFunc("/agents/{id}/score", s.handleGetScore).Methods("GET")
	v1.HandleFunc("/agents/{id}/events", s.handleRecordEvent).Methods("POST")

	// Lifecycle
	v1.HandleFunc("/agents/{id}/quarantine", s.handleQuarantine).Methods("POST")
	v1.HandleFunc("/agents/{id}/revoke", s.handleRevoke).Methods("POST")
	v1.HandleFunc("/agents/{id}/recover", s.handleRecover).Methods("POST")
	v1.HandleFunc("/agents/{id}/revocations", s.handleRevocationHistory).Methods("GET")
	v1.HandleFunc("/agents/{id}/audit", s.handleAuditTrail).Methods("GET")

	// Graph
	v1.HandleFunc("/endorsements", s.handleAddEndorsement).Methods("POST")
	v1.HandleFunc("/trust-path", s.handleTrustPath).Methods("GET")
	v1.HandleFunc("/trust-weight", s.handleTrustWeight).Methods("GET")

	// Seals
	v1.HandleFunc("/agents/{id}/seal", s.handleIssueSeal).Methods("POST")
	v1.HandleFunc("/seals/validate", s.handleValidateSeal).Methods("POST")

	// Audit
	v1.HandleFunc("/audit/root", s.handleAuditRoot).Methods("GET")

	// Webhook management
	if s.hooks != nil {
		v1.HandleFunc("/webhooks", s.handleRegisterWebhook).Methods("POST")
		v1.HandleFunc("/webhooks", s.handleListWebhooks).Methods("GET")
		v1.HandleFunc("/webhooks/{id}", s.handleUnregisterWebhook).Methods("DELETE")
	}

	return r
}

// Start runs the server until it fails or is shut down externally.
func (s *Server) Start(port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Printf("🚀 trustcore API listening on :%s", port)
	return srv.ListenAndServe()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "trustcore",
	})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrUnknownAgent):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidSignature), errors.Is(err, core.ErrSealExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrAgentRevoked):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrIllegalTransition):
		status = http.StatusConflict
	case errors.Is(err, core.ErrResolutionTimeout):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathAgentID(r *http.Request) (core.AgentID, error) {
	raw := mux.Vars(r)["id"]
	id, err := core.ParseAgentID(raw)
	if err != nil {
		return "", fmt.Errorf("invalid agent id %q: %w", raw, err)
	}
	return id, nil
}
