package redisrelay

import (
	"testing"

	"github.com/glspkit/glsp-server-go/relay"
	"github.com/glspkit/glsp-server-go/relay/relaytest"
)

func TestRedisRelay(t *testing.T) {
	// Quick availability check to allow graceful skip in environments without Redis.
	r, err := NewFromEnv()
	if err != nil {
		t.Skipf("skipping redis relay tests: %v", err)
		return
	}
	_ = r.Close()

	relaytest.Run(t, func(t *testing.T) relay.Relay {
		rr, err := NewFromEnv()
		if err != nil {
			t.Fatalf("NewFromEnv: %v", err)
		}
		t.Cleanup(func() { _ = rr.Close() })
		return rr
	})
}
