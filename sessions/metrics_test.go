package sessions

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/glspkit/glsp-server-go/sessions/clienttest"
)

func TestRegistryMetricsCountDeliveryOutcomes(t *testing.T) {
	promReg := prometheus.NewRegistry()
	r := NewRegistry(WithRegistryMetrics(promReg))

	proxy := clienttest.New()
	r.Connect("sess-1", proxy)

	ctx := context.Background()
	if err := r.Process(ctx, mustMessage(t, "sess-1", nil)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := r.Process(ctx, mustMessage(t, "sess-missing", nil)); !errors.Is(err, ErrUnroutableSession) {
		t.Fatalf("expected unroutable, got: %v", err)
	}

	proxy.SetErr(errors.New("broken pipe"))
	if err := r.Process(ctx, mustMessage(t, "sess-1", nil)); err == nil {
		t.Fatal("expected delivery failure")
	}

	if got := testutil.ToFloat64(r.metrics.connects); got != 1 {
		t.Fatalf("connects counter = %v", got)
	}
	if got := testutil.ToFloat64(r.metrics.delivered); got != 1 {
		t.Fatalf("delivered counter = %v", got)
	}
	if got := testutil.ToFloat64(r.metrics.unroutable); got != 1 {
		t.Fatalf("unroutable counter = %v", got)
	}
	if got := testutil.ToFloat64(r.metrics.failures); got != 1 {
		t.Fatalf("failures counter = %v", got)
	}
}

func TestRegistryWithoutMetricsIsNilSafe(t *testing.T) {
	r := NewRegistry()
	proxy := clienttest.New()

	r.Connect("sess-1", proxy)
	if err := r.Process(context.Background(), mustMessage(t, "sess-1", nil)); err != nil {
		t.Fatalf("process: %v", err)
	}
}
