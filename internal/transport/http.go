// Package transport implements the consumer-facing API described in spec
// §6: start_conversation, get_updates, abort_conversation, and
// cleanup_conversation, plus an optional WebSocket push channel. Grounded
// on the teacher's internal/gateway/http_server.go (net/http.ServeMux,
// promhttp.Handler on /metrics, a dedicated healthz handler, JSON
// marshal-or-500 response helpers).
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagewarden/warden/internal/agent"
	"github.com/pagewarden/warden/internal/auth"
)

// Server exposes the consumer API over HTTP.
type Server struct {
	orchestrator *agent.Orchestrator
	authSvc      *auth.Service
	logger       *slog.Logger
	registry     *prometheus.Registry

	httpServer *http.Server
}

// Config configures a new Server.
type Config struct {
	Orchestrator *agent.Orchestrator
	Auth         *auth.Service
	Logger       *slog.Logger
	Registry     *prometheus.Registry
}

// New builds a Server with its handlers wired but not yet listening.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orchestrator: cfg.Orchestrator, authSvc: cfg.Auth, logger: logger, registry: cfg.Registry}
}

// Mux builds the http.Handler for the consumer API, metrics, and health.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(s.authSvc)(h)
	}
	mux.Handle("/v1/start_conversation", protected(s.handleStart))
	mux.Handle("/v1/get_updates", protected(s.handleGetUpdates))
	mux.Handle("/v1/abort_conversation", protected(s.handleAbort))
	mux.Handle("/v1/cleanup_conversation", protected(s.handleCleanup))
	mux.Handle("/v1/ws", protected(http.HandlerFunc(s.HandleWS)))
	return mux
}

// Serve starts the HTTP server on addr. It blocks until the server stops;
// call Shutdown from another goroutine to stop it cleanly.
func (s *Server) Serve(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Mux(), ReadHeaderTimeout: 5 * time.Second}
	s.logger.Info("transport: http server listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
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

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startConversationRequest struct {
	ConversationID string `json:"conversation_id"`
	Prompt         string `json:"prompt"`
	TargetID       string `json:"target_id"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ConversationID == "" || req.TargetID == "" {
		http.Error(w, "conversation_id and target_id are required", http.StatusBadRequest)
		return
	}
	// The conversation outlives this request; only abort_conversation
	// cancels it, so its context must not derive from r.Context().
	s.orchestrator.Start(context.Background(), req.ConversationID, req.Prompt, req.TargetID)
	w.WriteHeader(http.StatusAccepted)
}

type conversationIDRequest struct {
	ConversationID string `json:"conversation_id"`
}

type getUpdatesResponse struct {
	Chunks   []agent.StreamChunk `json:"chunks"`
	Status   agent.Status        `json:"status"`
	FullText string              `json:"full_text"`
}

func (s *Server) handleGetUpdates(w http.ResponseWriter, r *http.Request) {
	var req conversationIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chunks, status, fullText, err := s.orchestrator.Poll(req.ConversationID)
	if err != nil {
		if errors.Is(err, agent.ErrConversationNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, getUpdatesResponse{Chunks: chunks, Status: status, FullText: fullText})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req conversationIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.orchestrator.Abort(req.ConversationID); err != nil {
		if errors.Is(err, agent.ErrConversationNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req conversationIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	_ = s.orchestrator.Cleanup(req.ConversationID)
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		http.Error(w, "request body is required", http.StatusBadRequest)
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "malformed JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
