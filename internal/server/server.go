// Package server implements the HTTP API that exposes the investor
// assistant: POST /api/ask answers questions within a session-scoped
// conversation, plus health, readiness, index status, and metrics endpoints.
// The server is started by the `pickme serve` CLI command.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fahammohmd/pickme-go/internal/engine"
	"github.com/fahammohmd/pickme-go/internal/logging"
)

// New constructs a Server from the provided engine and config.
func New(eng asker, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover retrieval plus LLM generation.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		asker:    eng,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(reg),
		sessions: make(map[string]*engine.Conversation),
	}

	if cfg.Index != nil {
		registerIndexGauge(reg, cfg.Index)
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		s.log.Warn("server: PICKME_API_KEY not set — API authentication is disabled")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask",
		authMiddleware(cfg.APIKey, rl.middleware(s.instrument("ask", http.HandlerFunc(s.handleAsk)))))
	mux.Handle("GET /api/index",
		authMiddleware(cfg.APIKey, s.instrument("index", http.HandlerFunc(s.handleIndex))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask. It resolves (or creates) the session's
// conversation, answers the question through the engine, and returns the
// grounded answer with its sources.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newRequestID()
	}
	conv := s.conversation(sessionID)

	start := time.Now()
	ans, err := s.asker.Ask(r.Context(), conv, req.Question)
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			status = http.StatusGatewayTimeout
		}
		s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

		logging.FromContext(r.Context()).Error("ask failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
		http.Error(w, "failed to answer question", status)
		return
	}

	s.metrics.askRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.askDurationSeconds.WithLabelValues("ok").Observe(elapsed.Seconds())
	s.metrics.askSourcesReturned.Observe(float64(len(ans.Sources)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(askResponse{
		SessionID: sessionID,
		Answer:    ans.Text,
		Sources:   ans.Sources,
	}); err != nil {
		logging.FromContext(r.Context()).Error("ask encode error", slog.Any("error", err))
	}
}

// handleIndex handles GET /api/index, reporting the lifecycle state and
// fingerprint of the document index.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Index == nil {
		http.Error(w, "index status not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(indexResponse{
		State:       string(s.cfg.Index.State()),
		Fingerprint: s.cfg.Index.Fingerprint(),
	}); err != nil {
		logging.FromContext(r.Context()).Error("index encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck // best-effort liveness reply
}

// conversation returns the conversation for the given session ID, creating
// it on first use. Conversations are never persisted; a restart forgets all
// sessions.
func (s *Server) conversation(sessionID string) *engine.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.sessions[sessionID]
	if !ok {
		conv = engine.NewConversation()
		s.sessions[sessionID] = conv
	}
	return conv
}

// newRequestID returns the hex encoding of 8 cryptographically random bytes
// (16 characters), used for both request IDs and generated session IDs.
// Falls back to a zero-filled ID on the (impossible in practice) error path.
func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}
