// Package relaytest provides a conformance suite for relay.Relay
// implementations.
package relaytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glspkit/glsp-server-go/relay"
)

// Factory creates a fresh Relay instance for a test.
type Factory func(t *testing.T) relay.Relay

// Run runs the complete Relay test suite against the provided factory.
func Run(t *testing.T, factory Factory) {
	t.Run("PublishReturnsEventID", func(t *testing.T) { testPublishReturnsEventID(t, factory) })
	t.Run("SubscribeReceivesSubsequentPublishes", func(t *testing.T) { testSubscribeReceivesSubsequentPublishes(t, factory) })
	t.Run("ResumeFromLastEventID", func(t *testing.T) { testResumeFromLastEventID(t, factory) })
	t.Run("IsolationBetweenSessions", func(t *testing.T) { testIsolationBetweenSessions(t, factory) })
	t.Run("HandlerErrorStopsSubscription", func(t *testing.T) { testHandlerErrorStopsSubscription(t, factory) })
	t.Run("ContextCancellationStopsSubscription", func(t *testing.T) { testContextCancellation(t, factory) })
}

func testPublishReturnsEventID(t *testing.T, factory Factory) {
	r := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev1, err := r.Publish(ctx, "sess-pub", []byte(`{"n":1}`))
	if err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	if ev1 == "" {
		t.Fatal("expected non-empty event id")
	}
	ev2, err := r.Publish(ctx, "sess-pub", []byte(`{"n":2}`))
	if err != nil {
		t.Fatalf("publish 2: %v", err)
	}
	if ev2 == ev1 {
		t.Fatalf("expected distinct event ids, got %q twice", ev1)
	}
}

func testSubscribeReceivesSubsequentPublishes(t *testing.T, factory Factory) {
	r := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const sessionID = "sess-live"

	type recv struct {
		id   string
		data []byte
	}
	got := make(chan recv, 1)

	done := make(chan error, 1)
	go func() {
		done <- r.Subscribe(ctx, sessionID, "", func(ctx context.Context, eventID string, data []byte) error {
			got <- recv{eventID, data}
			return nil
		})
	}()

	// Give the subscriber time to register before publishing.
	time.Sleep(100 * time.Millisecond)

	evID, err := r.Publish(ctx, sessionID, []byte(`{"hello":"world"}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-got:
		if msg.id != evID {
			t.Fatalf("expected event id %q, got %q", evID, msg.id)
		}
		if string(msg.data) != `{"hello":"world"}` {
			t.Fatalf("unexpected payload: %s", msg.data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("subscribe returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
}

func testResumeFromLastEventID(t *testing.T, factory Factory) {
	r := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const sessionID = "sess-resume"

	ev1, err := r.Publish(ctx, sessionID, []byte(`{"n":1}`))
	if err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	if _, err := r.Publish(ctx, sessionID, []byte(`{"n":2}`)); err != nil {
		t.Fatalf("publish 2: %v", err)
	}
	if _, err := r.Publish(ctx, sessionID, []byte(`{"n":3}`)); err != nil {
		t.Fatalf("publish 3: %v", err)
	}

	var mu sync.Mutex
	var payloads []string

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	done := make(chan error, 1)
	go func() {
		done <- r.Subscribe(subCtx, sessionID, ev1, func(ctx context.Context, eventID string, data []byte) error {
			mu.Lock()
			payloads = append(payloads, string(data))
			n := len(payloads)
			mu.Unlock()
			if n == 2 {
				subCancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("subscribe returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resumed delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("expected 2 resumed messages, got %d: %v", len(payloads), payloads)
	}
	if payloads[0] != `{"n":2}` || payloads[1] != `{"n":3}` {
		t.Fatalf("unexpected resumed payloads: %v", payloads)
	}
}

func testIsolationBetweenSessions(t *testing.T, factory Factory) {
	r := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 4)

	done := make(chan error, 1)
	go func() {
		done <- r.Subscribe(ctx, "sess-a", "", func(ctx context.Context, eventID string, data []byte) error {
			got <- string(data)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)

	if _, err := r.Publish(ctx, "sess-b", []byte(`{"for":"b"}`)); err != nil {
		t.Fatalf("publish b: %v", err)
	}
	if _, err := r.Publish(ctx, "sess-a", []byte(`{"for":"a"}`)); err != nil {
		t.Fatalf("publish a: %v", err)
	}

	select {
	case data := <-got:
		if data != `{"for":"a"}` {
			t.Fatalf("subscriber for sess-a received %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sess-a delivery")
	}

	select {
	case data := <-got:
		t.Fatalf("unexpected extra delivery: %s", data)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	<-done
}

func testHandlerErrorStopsSubscription(t *testing.T, factory Factory) {
	r := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const sessionID = "sess-handler-err"
	errBoom := fmt.Errorf("handler exploded")

	done := make(chan error, 1)
	go func() {
		done <- r.Subscribe(ctx, sessionID, "", func(ctx context.Context, eventID string, data []byte) error {
			return errBoom
		})
	}()

	time.Sleep(100 * time.Millisecond)

	if _, err := r.Publish(ctx, sessionID, []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected handler error, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after handler error")
	}
}

func testContextCancellation(t *testing.T, factory Factory) {
	r := factory(t)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.Subscribe(ctx, "sess-cancel", "", func(ctx context.Context, eventID string, data []byte) error {
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after context cancellation")
	}
}
