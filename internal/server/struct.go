package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fahammohmd/pickme-go/internal/engine"
	"github.com/fahammohmd/pickme-go/internal/index"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Index reports the state of the document index for GET /api/index.
	// May be nil if the server runs without index introspection.
	Index IndexStatus
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil a fresh registry is created, which keeps unit tests hermetic.
	Registry *prometheus.Registry
}

// asker is the interface handleAsk calls to answer a question within a
// conversation. *engine.Engine satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, conv *engine.Conversation, question string) (*engine.Answer, error)
}

// IndexStatus is the read-only view of the index lifecycle exposed by
// GET /api/index and the index readiness probe. *index.Manager satisfies it.
type IndexStatus interface {
	// State returns the current lifecycle state of the index.
	State() index.State
	// Fingerprint returns the corpus fingerprint of the current scan,
	// or empty before the first check completes.
	Fingerprint() string
}

// Server is the HTTP server that exposes the investor assistant.
type Server struct {
	// asker answers questions; *engine.Engine in production, a fake in tests.
	asker asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()

	// mu protects sessions.
	mu sync.Mutex
	// sessions maps session IDs to their in-memory conversations. Sessions
	// live for the lifetime of the process only.
	sessions map[string]*engine.Conversation
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// SessionID identifies the conversation to continue. Empty starts a new
	// session; the generated ID is returned in the response.
	SessionID string `json:"session_id,omitempty"`
	// Question is the investor's natural-language question.
	Question string `json:"question"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	// SessionID identifies the conversation this answer belongs to.
	SessionID string `json:"session_id"`
	// Answer is the grounded answer text.
	Answer string `json:"answer"`
	// Sources lists the document chunks the answer was grounded on,
	// nearest first.
	Sources []engine.Source `json:"sources"`
}

// indexResponse is the JSON response for GET /api/index.
type indexResponse struct {
	// State is the index lifecycle state (e.g. "READY", "BUILDING").
	State string `json:"state"`
	// Fingerprint is the corpus fingerprint of the current index.
	Fingerprint string `json:"fingerprint,omitempty"`
}
