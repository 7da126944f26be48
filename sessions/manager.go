package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/glspkit/glsp-server-go/glsp"
	"github.com/glspkit/glsp-server-go/internal/logctx"
	"github.com/glspkit/glsp-server-go/relay"
)

// Manager tracks physical client connections as they attach to and detach
// from logical sessions. It delegates registration to a ProxyRegistry and,
// when a Relay is configured, keeps exactly one relay subscription alive per
// session with local proxies so messages published by other instances reach
// them. It owns no session policy beyond connect/disconnect.
type Manager struct {
	registry *ProxyRegistry
	relay    relay.Relay
	log      *slog.Logger

	mu   sync.Mutex
	subs map[string]*relaySub
}

type relaySub struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger used for lifecycle events. Defaults to
// slog.Default().
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a Manager over registry. rel may be nil for
// single-instance deployments; in that case Connect and Disconnect are pure
// registry operations.
func NewManager(registry *ProxyRegistry, rel relay.Relay, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		relay:    rel,
		subs:     make(map[string]*relaySub),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// NewSessionID mints a fresh session identifier for callers that do not
// bring their own.
func (m *Manager) NewSessionID() string {
	return uuid.NewString()
}

// Connect registers client as a proxy for sessionID and ensures the
// session's relay subscription is running.
func (m *Manager) Connect(ctx context.Context, sessionID string, client Client) {
	m.registry.Connect(sessionID, client)

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID})
	m.log.InfoContext(ctx, "client connected",
		slog.Int("proxies", m.registry.Count(sessionID)))

	if m.relay != nil {
		m.ensureSubscription(sessionID)
	}
}

// Disconnect removes one registration of client under sessionID, reporting
// whether one was found. When the last local proxy for the session is gone
// its relay subscription is cancelled.
func (m *Manager) Disconnect(ctx context.Context, sessionID string, client Client) bool {
	ok := m.registry.Disconnect(sessionID, client)
	if !ok {
		return false
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID})
	m.log.InfoContext(ctx, "client disconnected",
		slog.Int("proxies", m.registry.Count(sessionID)))

	if m.registry.Count(sessionID) == 0 {
		m.dropSubscription(sessionID)
	}
	return true
}

// CleanupSession releases the relay state retained for sessionID: its
// subscription on this instance and the topic's backlog. Detaching the last
// local proxy does not do this implicitly, because the same session may
// still hold proxies on other instances sharing the relay; the host calls
// CleanupSession when it ends the logical session. A nil relay makes this a
// no-op.
func (m *Manager) CleanupSession(ctx context.Context, sessionID string) error {
	m.dropSubscription(sessionID)
	if m.relay == nil {
		return nil
	}
	if err := m.relay.Cleanup(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clean up relay topic for session %q: %w", sessionID, err)
	}
	m.log.InfoContext(ctx, "session cleaned up", slog.String("session_id", sessionID))
	return nil
}

// DisconnectAll removes client from every session it is registered under,
// one registration per session, tearing down relay subscriptions for
// sessions that empty out.
func (m *Manager) DisconnectAll(ctx context.Context, client Client) {
	for _, sessionID := range m.registry.Sessions() {
		m.Disconnect(ctx, sessionID, client)
	}
}

// Close cancels all relay subscriptions and waits for them to settle. The
// registry is left untouched.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := make([]*relaySub, 0, len(m.subs))
	for id, sub := range m.subs {
		subs = append(subs, sub)
		delete(m.subs, id)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
}

func (m *Manager) ensureSubscription(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[sessionID]; ok {
		return
	}

	// The subscription must outlive the Connect call's context.
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &relaySub{cancel: cancel, done: make(chan struct{})}
	m.subs[sessionID] = sub

	go func() {
		defer close(sub.done)
		err := m.relay.Subscribe(subCtx, sessionID, "", m.relayHandler(sessionID))
		if err != nil && !errors.Is(err, context.Canceled) {
			m.log.Warn("relay subscription ended",
				slog.String("session_id", sessionID),
				slog.String("err", err.Error()))
		}
		m.mu.Lock()
		if m.subs[sessionID] == sub {
			delete(m.subs, sessionID)
		}
		m.mu.Unlock()
	}()
}

func (m *Manager) relayHandler(sessionID string) relay.HandlerFunc {
	return func(ctx context.Context, eventID string, data []byte) error {
		var msg glsp.ActionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.log.WarnContext(ctx, "discarding malformed relayed message",
				slog.String("session_id", sessionID),
				slog.String("event_id", eventID),
				slog.String("err", err.Error()))
			return nil
		}
		if err := m.registry.Process(ctx, &msg); err != nil {
			// The last local proxy may detach between publish and delivery;
			// that must not kill the subscription.
			if errors.Is(err, ErrUnroutableSession) {
				m.log.WarnContext(ctx, "relayed message had no local proxies",
					slog.String("event_id", eventID))
				return nil
			}
			return err
		}
		return nil
	}
}

func (m *Manager) dropSubscription(sessionID string) {
	m.mu.Lock()
	sub, ok := m.subs[sessionID]
	if ok {
		delete(m.subs, sessionID)
	}
	m.mu.Unlock()

	if ok {
		sub.cancel()
		<-sub.done
	}
}
