// Package memoryrelay provides an in-memory implementation of relay.Relay
// using Go channels for delivery. It is suitable for single-process
// deployments and tests; state is local to the process.
package memoryrelay

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/glspkit/glsp-server-go/relay"
)

const defaultBacklog = 256

// Relay implements relay.Relay with per-session topics held in process
// memory. Each topic keeps a bounded backlog ring for resume-from-event-id.
type Relay struct {
	mu           sync.RWMutex
	topics       map[string]*topic
	eventCounter atomic.Int64
	backlog      int
}

type topic struct {
	mu          sync.Mutex
	log         *queue.Queue // of relay.Envelope, oldest first
	subscribers map[*subscriber]struct{}
	closed      bool
}

type subscriber struct {
	ch chan relay.Envelope
}

// Option configures a Relay.
type Option func(*Relay)

// WithBacklog bounds the number of messages retained per topic for resume.
// Values below 1 fall back to the default.
func WithBacklog(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.backlog = n
		}
	}
}

// New creates a memory-backed relay.
func New(opts ...Option) *Relay {
	r := &Relay{
		topics:  make(map[string]*topic),
		backlog: defaultBacklog,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) topicFor(sessionID string) *topic {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[sessionID]
	if !ok {
		t = &topic{
			log:         queue.New(),
			subscribers: make(map[*subscriber]struct{}),
		}
		r.topics[sessionID] = t
	}
	return t
}

// Publish implements relay.Relay.
func (r *Relay) Publish(ctx context.Context, sessionID string, data []byte) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	eventID := strconv.FormatInt(r.eventCounter.Add(1), 10)
	env := relay.Envelope{
		ID:   eventID,
		Data: append([]byte(nil), data...),
	}

	t := r.topicFor(sessionID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return "", fmt.Errorf("relay topic %q has been cleaned up", sessionID)
	}

	t.log.Add(env)
	for t.log.Length() > r.backlog {
		t.log.Remove()
	}

	for sub := range t.subscribers {
		select {
		case sub.ch <- env:
		default:
			// Subscriber buffer full; drop rather than block publishers.
		}
	}

	return eventID, nil
}

// Subscribe implements relay.Relay. The replay position is resolved while the
// subscriber is registered, so no message published after lastEventID can be
// missed between replay and live delivery.
func (r *Relay) Subscribe(ctx context.Context, sessionID string, lastEventID string, handler relay.HandlerFunc) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	t := r.topicFor(sessionID)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("relay topic %q has been cleaned up", sessionID)
	}

	var replay []relay.Envelope
	if lastEventID != "" {
		start := -1
		for i := 0; i < t.log.Length(); i++ {
			if t.log.Get(i).(relay.Envelope).ID == lastEventID {
				start = i + 1
				break
			}
		}
		if start < 0 {
			t.mu.Unlock()
			return fmt.Errorf("event id %q not found in topic %q", lastEventID, sessionID)
		}
		for i := start; i < t.log.Length(); i++ {
			replay = append(replay, t.log.Get(i).(relay.Envelope))
		}
	}

	sub := &subscriber{ch: make(chan relay.Envelope, 100)}
	t.subscribers[sub] = struct{}{}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if !t.closed {
			delete(t.subscribers, sub)
		}
		t.mu.Unlock()
	}()

	// Replayed envelopes were captured before the subscriber went live, so
	// live messages queue behind them in sub.ch and order is preserved.
	for _, env := range replay {
		if err := handler(ctx, env.ID, env.Data); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-sub.ch:
			if !ok {
				// Topic cleaned up.
				return nil
			}
			if err := handler(ctx, env.ID, env.Data); err != nil {
				return err
			}
		}
	}
}

// Cleanup implements relay.Relay.
func (r *Relay) Cleanup(ctx context.Context, sessionID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mu.Lock()
	t, ok := r.topics[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.topics, sessionID)
	r.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for sub := range t.subscribers {
		close(sub.ch)
	}
	t.subscribers = make(map[*subscriber]struct{})
	t.log = queue.New()

	return nil
}

var _ relay.Relay = (*Relay)(nil)
