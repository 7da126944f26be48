// Package clienttest provides a recording sessions.Client for tests.
package clienttest

import (
	"context"
	"sync"

	"github.com/glspkit/glsp-server-go/glsp"
)

// RecordingClient is a sessions.Client that records every message it is
// asked to process. It is safe for concurrent use. An error set via SetErr
// is returned from Process after recording, to exercise delivery-failure
// paths.
type RecordingClient struct {
	mu       sync.Mutex
	messages []*glsp.ActionMessage
	notify   chan struct{}
	err      error
}

// New creates a RecordingClient.
func New() *RecordingClient {
	return &RecordingClient{
		notify: make(chan struct{}, 64),
	}
}

// Process records msg and returns the configured error, if any.
func (c *RecordingClient) Process(ctx context.Context, msg *glsp.ActionMessage) error {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	err := c.err
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return err
}

// Messages returns a snapshot of everything recorded so far.
func (c *RecordingClient) Messages() []*glsp.ActionMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*glsp.ActionMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of recorded messages.
func (c *RecordingClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Notify returns a channel that receives a tick for each recorded message,
// for rendezvous with asynchronous delivery paths.
func (c *RecordingClient) Notify() <-chan struct{} {
	return c.notify
}

// SetErr sets the error returned by subsequent Process calls.
func (c *RecordingClient) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}
