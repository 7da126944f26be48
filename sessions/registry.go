package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glspkit/glsp-server-go/glsp"
	"github.com/glspkit/glsp-server-go/internal/logctx"
)

// ErrUnroutableSession matches any UnroutableSessionError via errors.Is.
var ErrUnroutableSession = errors.New("unroutable session")

// UnroutableSessionError reports a Process call addressed to a session with
// no registered client proxies. It is an invalid-argument class failure: the
// caller must treat it as a defect upstream (client gone before delivery),
// not as a transient condition to swallow.
type UnroutableSessionError struct {
	SessionID string
}

func (e *UnroutableSessionError) Error() string {
	return fmt.Sprintf("could not retrieve client proxy for session %q", e.SessionID)
}

func (e *UnroutableSessionError) Unwrap() error { return ErrUnroutableSession }

// ProxyRegistry owns the session-to-proxies routing table. One logical
// session may be backed by multiple physical client proxies; Process fans an
// action message out to all of them. All methods are safe for concurrent use
// without caller-side locking. The registry holds non-owning references: it
// never closes a proxy, and its state is never persisted.
type ProxyRegistry struct {
	mu      sync.RWMutex
	proxies map[string][]Client

	log     *slog.Logger
	metrics *registryMetrics
}

var _ Client = (*ProxyRegistry)(nil)

// RegistryOption configures a ProxyRegistry.
type RegistryOption func(*ProxyRegistry)

// WithRegistryLogger sets the logger used for connect/disconnect and
// delivery events. Defaults to slog.Default().
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *ProxyRegistry) {
		r.log = log
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *ProxyRegistry {
	r := &ProxyRegistry{
		proxies: make(map[string][]Client),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Connect registers client as a proxy for sessionID, creating the session's
// collection if absent. Duplicate registrations are allowed and independent:
// connecting the same pair twice requires two disconnects. The registration
// is visible to concurrent Process calls as soon as Connect returns.
func (r *ProxyRegistry) Connect(sessionID string, client Client) {
	r.mu.Lock()
	r.proxies[sessionID] = append(r.proxies[sessionID], client)
	n := len(r.proxies[sessionID])
	r.mu.Unlock()

	r.metrics.incConnect()
	r.log.Debug("client proxy connected",
		slog.String("session_id", sessionID),
		slog.Int("proxies", n))
}

// Disconnect removes one occurrence of client from sessionID's collection,
// matched by identity. It reports whether a registration was removed; an
// unknown session or an unregistered proxy yields false, never an error.
// When the last proxy for a session is removed the session entry is pruned,
// so the session becomes indistinguishable from one never registered.
func (r *ProxyRegistry) Disconnect(sessionID string, client Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients, ok := r.proxies[sessionID]
	if !ok {
		return false
	}

	for i, c := range clients {
		if c == client {
			clients = append(clients[:i], clients[i+1:]...)
			if len(clients) == 0 {
				delete(r.proxies, sessionID)
			} else {
				r.proxies[sessionID] = clients
			}
			r.log.Debug("client proxy disconnected",
				slog.String("session_id", sessionID),
				slog.Int("proxies", len(clients)))
			return true
		}
	}
	return false
}

// DisconnectAll removes client from every session it is registered under,
// applying the single-session Disconnect per affected session. The key set is
// snapshotted before the sweep so sessions pruned or added concurrently never
// disturb the iteration. A proxy absent from all sessions is a no-op.
func (r *ProxyRegistry) DisconnectAll(client Client) {
	for _, sessionID := range r.Sessions() {
		r.Disconnect(sessionID, client)
	}
}

// Process delivers msg to every proxy registered for msg.ClientID, in
// registration order, synchronously. If no proxy is registered it fails with
// an UnroutableSessionError rather than dropping the message. A failing
// proxy's error propagates immediately and aborts delivery to later proxies
// in the same call: delivery is at-least-attempted, not exactly-once.
func (r *ProxyRegistry) Process(ctx context.Context, msg *glsp.ActionMessage) error {
	r.mu.RLock()
	clients := make([]Client, len(r.proxies[msg.ClientID]))
	copy(clients, r.proxies[msg.ClientID])
	r.mu.RUnlock()

	ctx = logctx.WithActionData(ctx, &logctx.ActionData{
		Kind:     msg.Action.Kind(),
		ClientID: msg.ClientID,
	})

	if len(clients) == 0 {
		r.metrics.incUnroutable()
		r.log.WarnContext(ctx, "action message unroutable")
		return &UnroutableSessionError{SessionID: msg.ClientID}
	}

	for _, c := range clients {
		if err := c.Process(ctx, msg); err != nil {
			r.metrics.incFailure()
			return err
		}
		r.metrics.incDelivered()
	}
	return nil
}

// Sessions returns a snapshot of the session ids currently holding at least
// one registered proxy.
func (r *ProxyRegistry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.proxies))
	for id := range r.proxies {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of proxies currently registered for sessionID.
func (r *ProxyRegistry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.proxies[sessionID])
}
