package sessions

import (
	"github.com/prometheus/client_golang/prometheus"
)

// registryMetrics holds the delivery counters for a ProxyRegistry. A nil
// receiver disables instrumentation, so the registry can call through
// unconditionally.
type registryMetrics struct {
	connects   prometheus.Counter
	delivered  prometheus.Counter
	unroutable prometheus.Counter
	failures   prometheus.Counter
}

// WithRegistryMetrics registers delivery counters with reg and attaches them
// to the registry. Pass prometheus.DefaultRegisterer for the usual global
// exposition; tests typically pass a fresh prometheus.NewRegistry().
func WithRegistryMetrics(reg prometheus.Registerer) RegistryOption {
	return func(r *ProxyRegistry) {
		m := &registryMetrics{
			connects: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "glsp_registry_connects_total",
				Help: "Client proxy registrations accepted by the registry.",
			}),
			delivered: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "glsp_registry_messages_delivered_total",
				Help: "Action messages delivered to an individual client proxy.",
			}),
			unroutable: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "glsp_registry_messages_unroutable_total",
				Help: "Action messages rejected because no proxy was registered for the session.",
			}),
			failures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "glsp_registry_delivery_failures_total",
				Help: "Deliveries aborted by a client proxy error.",
			}),
		}
		reg.MustRegister(m.connects, m.delivered, m.unroutable, m.failures)
		r.metrics = m
	}
}

func (m *registryMetrics) incConnect() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *registryMetrics) incDelivered() {
	if m != nil {
		m.delivered.Inc()
	}
}

func (m *registryMetrics) incUnroutable() {
	if m != nil {
		m.unroutable.Inc()
	}
}

func (m *registryMetrics) incFailure() {
	if m != nil {
		m.failures.Inc()
	}
}
