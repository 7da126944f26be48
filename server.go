package glspserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/glspkit/glsp-server-go/glsp"
	"github.com/glspkit/glsp-server-go/relay"
	"github.com/glspkit/glsp-server-go/sessions"
)

// Server is the dispatch surface the protocol engine hands outbound action
// messages to. With a relay configured, Dispatch publishes to the message's
// session topic and delivery happens wherever that session's proxies are
// registered; without one, it delivers straight through the local registry.
type Server struct {
	registry *sessions.ProxyRegistry
	relay    relay.Relay
	log      *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRelay routes Dispatch through rel instead of delivering locally.
func WithRelay(rel relay.Relay) Option {
	return func(s *Server) {
		s.relay = rel
	}
}

// WithLogger sets the server's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// New creates a Server over registry.
func New(registry *sessions.ProxyRegistry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Registry exposes the underlying proxy registry, e.g. for a
// connection-lifecycle manager sharing it.
func (s *Server) Registry() *sessions.ProxyRegistry {
	return s.registry
}

// Dispatch routes msg toward every proxy registered for its session. With a
// relay configured the message is published to the session's topic and
// delivery errors surface on the subscribing side; otherwise this is a
// synchronous local delivery and unroutable sessions fail here.
func (s *Server) Dispatch(ctx context.Context, msg *glsp.ActionMessage) error {
	if s.relay == nil {
		return s.DispatchLocal(ctx, msg)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal action message: %w", err)
	}
	eventID, err := s.relay.Publish(ctx, msg.ClientID, data)
	if err != nil {
		return fmt.Errorf("failed to publish action message for session %q: %w", msg.ClientID, err)
	}
	s.log.DebugContext(ctx, "action message published",
		slog.String("session_id", msg.ClientID),
		slog.String("event_id", eventID))
	return nil
}

// DispatchLocal delivers msg through the local registry only, bypassing any
// configured relay.
func (s *Server) DispatchLocal(ctx context.Context, msg *glsp.ActionMessage) error {
	return s.registry.Process(ctx, msg)
}
