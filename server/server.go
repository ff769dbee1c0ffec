//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package server exposes the orchestration engine over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/log"
	"github.com/crewcall-ai/crewcall/memory"
	"github.com/crewcall-ai/crewcall/router"
	"github.com/crewcall-ai/crewcall/session"
	"github.com/crewcall-ai/crewcall/supervisor"
	"github.com/crewcall-ai/crewcall/tool"
)

// ErrInvalidToken is returned by authenticators for unknown credentials.
var ErrInvalidToken = errors.New("invalid token")

// Authenticator resolves a bearer token to a caller identity. Token
// issuance is an upstream concern.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (identity.Caller, error)
}

// StaticAuthenticator maps fixed tokens to callers. It serves tests and
// single-tenant deployments.
type StaticAuthenticator map[string]identity.Caller

// Authenticate implements the Authenticator interface.
func (a StaticAuthenticator) Authenticate(_ context.Context, token string) (identity.Caller, error) {
	caller, ok := a[token]
	if !ok {
		return identity.Caller{}, ErrInvalidToken
	}
	return caller, nil
}

const defaultAddr = ":8080"

// Server serves the chat API, the status endpoint and the WebSocket
// transport.
type Server struct {
	supervisor *supervisor.Supervisor
	auth       Authenticator

	llmRouter *router.Router
	registry  *tool.Registry
	queue     *memory.Queue
	sessions  session.Service

	addr           string
	allowedOrigins []string
	mockMode       bool

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address, ":8080" by default.
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLLMRouter exposes provider statistics on the status endpoint.
func WithLLMRouter(r *router.Router) Option {
	return func(s *Server) {
		s.llmRouter = r
	}
}

// WithToolRegistry exposes the tool inventory on the status endpoint.
func WithToolRegistry(registry *tool.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithMemoryQueue exposes the background queue depth on the status endpoint.
func WithMemoryQueue(queue *memory.Queue) Option {
	return func(s *Server) {
		s.queue = queue
	}
}

// WithSessionService exposes conversation counts on the status endpoint.
func WithSessionService(sessions session.Service) Option {
	return func(s *Server) {
		s.sessions = sessions
	}
}

// WithAllowedOrigins restricts CORS and WebSocket origins. Empty allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithMockMode marks responses as served by the offline mock fallback.
func WithMockMode(enabled bool) Option {
	return func(s *Server) {
		s.mockMode = enabled
	}
}

// New creates a server over the given supervisor and authenticator.
func New(sup *supervisor.Supervisor, auth Authenticator, opts ...Option) *Server {
	s := &Server{
		supervisor: sup,
		auth:       auth,
		addr:       defaultAddr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed, CORS-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type chatRequest struct {
	Message        string         `json:"message"`
	AgentType      string         `json:"agent_type,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Mode           string         `json:"mode,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

type chatResponse struct {
	Content        string                     `json:"content"`
	ConversationID string                     `json:"conversation_id"`
	AgentType      string                     `json:"agent_type"`
	Routing        supervisor.RoutingDecision `json:"routing"`
	Metadata       map[string]any             `json:"metadata,omitempty"`
	Timestamp      time.Time                  `json:"timestamp"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authorize(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	rsp, err := s.supervisor.Handle(r.Context(), &identity.Query{
		Caller:         caller,
		Text:           req.Message,
		PreferredAgent: req.AgentType,
		ConversationID: req.ConversationID,
		Mode:           identity.SelectionMode(req.Mode),
		Metadata:       req.Context,
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		log.Errorf("chat turn failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Content:        rsp.Content,
		ConversationID: rsp.ConversationID,
		AgentType:      s.sourceType(rsp.Source),
		Routing:        rsp.Routing,
		Metadata:       chatMetadata(rsp),
		Timestamp:      rsp.Timestamp,
	})
}

// sourceType maps the supervisor source to the wire agent type. In mock
// mode every LLM-backed answer is labeled as the offline fallback.
func (s *Server) sourceType(source string) string {
	if s.mockMode && source != supervisor.SourceSecurityFiltered {
		return supervisor.SourceMockFallback
	}
	return source
}

func chatMetadata(rsp *supervisor.Response) map[string]any {
	metadata := map[string]any{}
	if rsp.Provider != "" {
		metadata["provider"] = rsp.Provider
	}
	if rsp.Flagged {
		metadata["flagged"] = true
	}
	if len(rsp.ToolResults) > 0 {
		tools := make([]string, 0, len(rsp.ToolResults))
		for name := range rsp.ToolResults {
			tools = append(tools, name)
		}
		metadata["tools_used"] = tools
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

type statusResponse struct {
	Status    string                          `json:"status"`
	Providers map[string]router.StatsSnapshot `json:"providers,omitempty"`
	Tools     *toolStatus                     `json:"tools,omitempty"`
	Memory    *memoryStatus                   `json:"memory,omitempty"`
	Sessions  *sessionStatus                  `json:"sessions,omitempty"`
	Timestamp time.Time                       `json:"timestamp"`
}

type toolStatus struct {
	Count int      `json:"count"`
	Names []string `json:"names"`
}

type memoryStatus struct {
	QueuedTasks int `json:"queued_tasks"`
}

type sessionStatus struct {
	ActiveConversations int `json:"active_conversations"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rsp := statusResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	}
	if s.llmRouter != nil {
		rsp.Providers = s.llmRouter.AllStats()
	}
	if s.registry != nil {
		rsp.Tools = &toolStatus{Count: s.registry.Len(), Names: s.registry.Names()}
	}
	if s.queue != nil {
		rsp.Memory = &memoryStatus{QueuedTasks: s.queue.Len()}
	}
	if s.sessions != nil {
		if stats, err := s.sessions.Stats(r.Context()); err == nil {
			rsp.Sessions = &sessionStatus{ActiveConversations: stats.ActiveConversations}
		}
	}
	writeJSON(w, http.StatusOK, rsp)
}

// authorize resolves the bearer token on the request. A failure writes the
// 401 itself.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (identity.Caller, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return identity.Caller{}, false
	}
	caller, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return identity.Caller{}, false
	}
	return caller, true
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
