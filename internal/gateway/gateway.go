// ABOUTME: HTTP server wiring for the gateway API surface
// ABOUTME: Routes, auth middleware boundary and lifecycle management

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Bakhitov/crafty-gateway/internal/auth"
	"github.com/Bakhitov/crafty-gateway/internal/channel"
	"github.com/Bakhitov/crafty-gateway/internal/connection"
	"github.com/Bakhitov/crafty-gateway/internal/conversation"
	"github.com/Bakhitov/crafty-gateway/internal/keyvault"
	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// TurnRunner drives one conversation turn and streams its events.
type TurnRunner interface {
	Run(ctx context.Context, req *conversation.TurnRequest) (<-chan conversation.Event, error)
}

// Options collects the dependencies the HTTP surface exposes.
type Options struct {
	Addr        string
	Store       store.Store
	Turns       TurnRunner
	Connections *connection.Service
	Channels    *channel.Service
	Vault       *keyvault.Service
	Verifier    auth.TokenVerifier
}

// Server is the gateway HTTP API.
type Server struct {
	store       store.Store
	turns       TurnRunner
	connections *connection.Service
	channels    *channel.Service
	vault       *keyvault.Service
	verifier    auth.TokenVerifier
	httpServer  *http.Server
	logger      *slog.Logger
}

// New creates the gateway server. The handler is built eagerly so tests
// can serve it without binding a listener.
func New(opts Options) *Server {
	s := &Server{
		store:       opts.Store,
		turns:       opts.Turns,
		connections: opts.Connections,
		channels:    opts.Channels,
		vault:       opts.Vault,
		verifier:    opts.Verifier,
		logger:      slog.Default().With("component", "gateway"),
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table. Webhook endpoints and the health
// check stay outside the auth boundary; everything else under /api/
// requires a bearer token.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/webhooks/evolution/{id}", s.handleEvolutionWebhook)
	mux.HandleFunc("POST /api/webhooks/chatwoot/{id}", s.handleChatwootWebhook)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", s.handleChat)

	api.HandleFunc("GET /api/threads", s.handleListThreads)
	api.HandleFunc("GET /api/threads/{id}/messages", s.handleThreadMessages)
	api.HandleFunc("DELETE /api/threads/{id}", s.handleDeleteThread)

	api.HandleFunc("POST /api/agents", s.handleCreateAgent)
	api.HandleFunc("GET /api/agents", s.handleListAgents)
	api.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	api.HandleFunc("PUT /api/agents/{id}", s.handleUpdateAgent)
	api.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)

	api.HandleFunc("POST /api/connections/evolution", s.handleCreateEvolutionConnection)
	api.HandleFunc("POST /api/connections/chatwoot", s.handleCreateChatwootConnection)
	api.HandleFunc("GET /api/connections", s.handleListConnections)
	api.HandleFunc("POST /api/connections/{id}/connect", s.handleConnect)
	api.HandleFunc("DELETE /api/connections/{id}", s.handleDeleteConnection)

	api.HandleFunc("PUT /api/channels/{inbox}/agent", s.handleBind)
	api.HandleFunc("GET /api/channels/{inbox}/agent", s.handleGetBinding)
	api.HandleFunc("DELETE /api/channels/{inbox}/agent", s.handleUnbind)

	api.HandleFunc("PUT /api/keys/{provider}", s.handleSetKey)
	api.HandleFunc("GET /api/keys", s.handleListKeys)
	api.HandleFunc("DELETE /api/keys/{provider}/{id}", s.handleDeleteKey)

	mux.Handle("/api/", auth.HTTPAuthMiddleware(s.verifier)(api))
	return mux
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
