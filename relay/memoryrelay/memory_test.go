package memoryrelay

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/glspkit/glsp-server-go/relay"
	"github.com/glspkit/glsp-server-go/relay/relaytest"
)

func TestMemoryRelay(t *testing.T) {
	relaytest.Run(t, func(t *testing.T) relay.Relay {
		return New()
	})
}

func TestCleanupTerminatesSubscribers(t *testing.T) {
	r := New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- r.Subscribe(ctx, "sess-1", "", func(ctx context.Context, eventID string, data []byte) error {
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)

	if err := r.Cleanup(ctx, "sess-1"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("subscribe returned error after cleanup: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cleanup")
	}

	if _, err := r.Publish(ctx, "sess-1", []byte(`{}`)); err != nil {
		t.Fatalf("publish to recreated topic: %v", err)
	}
}

func TestBacklogIsBounded(t *testing.T) {
	r := New(WithBacklog(2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var first string
	for i := 0; i < 5; i++ {
		id, err := r.Publish(ctx, "sess-1", []byte(strconv.Itoa(i)))
		if err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		if i == 0 {
			first = id
		}
	}

	// The oldest event has been evicted, so resuming from it must fail.
	err := r.Subscribe(ctx, "sess-1", first, func(ctx context.Context, eventID string, data []byte) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected resume from evicted event id to fail")
	}
}
