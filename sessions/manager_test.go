package sessions_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glspkit/glsp-server-go/glsp"
	"github.com/glspkit/glsp-server-go/relay/memoryrelay"
	"github.com/glspkit/glsp-server-go/sessions"
	"github.com/glspkit/glsp-server-go/sessions/clienttest"
)

func publish(t *testing.T, rel *memoryrelay.Relay, sessionID string, params any) {
	t.Helper()
	action, err := glsp.NewAction("update", params)
	if err != nil {
		t.Fatalf("NewAction: %v", err)
	}
	msg, err := glsp.NewActionMessage(sessionID, action)
	if err != nil {
		t.Fatalf("NewActionMessage: %v", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := rel.Publish(context.Background(), sessionID, data); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func waitForDelivery(t *testing.T, c *clienttest.RecordingClient) {
	t.Helper()
	select {
	case <-c.Notify():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed delivery")
	}
}

func TestManagerRelaysMessagesToLocalProxies(t *testing.T) {
	rel := memoryrelay.New()
	registry := sessions.NewRegistry()
	m := sessions.NewManager(registry, rel)
	defer m.Close()

	ctx := context.Background()
	proxy := clienttest.New()

	sessionID := m.NewSessionID()
	m.Connect(ctx, sessionID, proxy)

	// Let the relay subscription register before publishing.
	time.Sleep(100 * time.Millisecond)

	publish(t, rel, sessionID, map[string]string{"elementId": "edge-2"})
	waitForDelivery(t, proxy)

	msgs := proxy.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ClientID != sessionID {
		t.Fatalf("message routed to client %q", msgs[0].ClientID)
	}
	if msgs[0].Action.Kind() != "update" {
		t.Fatalf("unexpected action kind %q", msgs[0].Action.Kind())
	}
}

func TestManagerSharesOneSubscriptionAcrossProxies(t *testing.T) {
	rel := memoryrelay.New()
	registry := sessions.NewRegistry()
	m := sessions.NewManager(registry, rel)
	defer m.Close()

	ctx := context.Background()
	proxyA := clienttest.New()
	proxyB := clienttest.New()

	const sessionID = "sess-shared"
	m.Connect(ctx, sessionID, proxyA)
	m.Connect(ctx, sessionID, proxyB)

	time.Sleep(100 * time.Millisecond)

	publish(t, rel, sessionID, nil)
	waitForDelivery(t, proxyA)
	waitForDelivery(t, proxyB)

	if proxyA.Len() != 1 || proxyB.Len() != 1 {
		t.Fatalf("both proxies should receive exactly one copy, got a=%d b=%d", proxyA.Len(), proxyB.Len())
	}
}

func TestManagerDropsSubscriptionWithLastProxy(t *testing.T) {
	rel := memoryrelay.New()
	registry := sessions.NewRegistry()
	m := sessions.NewManager(registry, rel)
	defer m.Close()

	ctx := context.Background()
	proxy := clienttest.New()

	const sessionID = "sess-drop"
	m.Connect(ctx, sessionID, proxy)
	time.Sleep(100 * time.Millisecond)

	if !m.Disconnect(ctx, sessionID, proxy) {
		t.Fatal("disconnect should report true")
	}

	// With the subscription gone, published messages must not reach the
	// detached proxy.
	publish(t, rel, sessionID, nil)
	time.Sleep(200 * time.Millisecond)

	if got := proxy.Len(); got != 0 {
		t.Fatalf("expected no deliveries after disconnect, got %d", got)
	}
}

func TestCleanupSessionDropsRelayBacklog(t *testing.T) {
	rel := memoryrelay.New()
	registry := sessions.NewRegistry()
	m := sessions.NewManager(registry, rel)
	defer m.Close()

	ctx := context.Background()
	proxy := clienttest.New()

	const sessionID = "sess-cleanup"
	m.Connect(ctx, sessionID, proxy)
	time.Sleep(100 * time.Millisecond)

	publish(t, rel, sessionID, nil)
	waitForDelivery(t, proxy)

	if !m.Disconnect(ctx, sessionID, proxy) {
		t.Fatal("disconnect should report true")
	}
	if err := m.CleanupSession(ctx, sessionID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	// The topic's backlog is gone: resuming from the delivered message's
	// position must fail rather than find retained history.
	subCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err := rel.Subscribe(subCtx, sessionID, "1", func(ctx context.Context, eventID string, data []byte) error {
		return nil
	})
	if err == nil || err == context.DeadlineExceeded {
		t.Fatalf("expected resume into cleaned topic to fail, got: %v", err)
	}
}

func TestCleanupSessionWithoutRelay(t *testing.T) {
	m := sessions.NewManager(sessions.NewRegistry(), nil)
	defer m.Close()

	if err := m.CleanupSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("cleanup without relay: %v", err)
	}
}

func TestManagerDisconnectAllSweepsSessions(t *testing.T) {
	rel := memoryrelay.New()
	registry := sessions.NewRegistry()
	m := sessions.NewManager(registry, rel)
	defer m.Close()

	ctx := context.Background()
	proxy := clienttest.New()

	m.Connect(ctx, "sess-1", proxy)
	m.Connect(ctx, "sess-2", proxy)

	m.DisconnectAll(ctx, proxy)

	if got := len(registry.Sessions()); got != 0 {
		t.Fatalf("expected registry to be empty, have %d sessions", got)
	}
}

func TestManagerWithoutRelay(t *testing.T) {
	registry := sessions.NewRegistry()
	m := sessions.NewManager(registry, nil)
	defer m.Close()

	ctx := context.Background()
	proxy := clienttest.New()

	m.Connect(ctx, "sess-1", proxy)
	if got := registry.Count("sess-1"); got != 1 {
		t.Fatalf("expected registration without relay, count=%d", got)
	}
	if !m.Disconnect(ctx, "sess-1", proxy) {
		t.Fatal("disconnect should report true")
	}
}

func TestNewSessionIDsAreUnique(t *testing.T) {
	m := sessions.NewManager(sessions.NewRegistry(), nil)
	defer m.Close()

	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := m.NewSessionID()
		if id == "" {
			t.Fatal("empty session id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = struct{}{}
	}
}
