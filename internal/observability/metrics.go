package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the domain counters exposed on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	WebhookEvents    *prometheus.CounterVec // provider, outcome
	QuotaDenials     *prometheus.CounterVec // resource, reason
	SweepTransitions *prometheus.CounterVec // job, result
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamride",
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		QuotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamride",
			Subsystem: "billing",
			Name:      "quota_denials_total",
			Help:      "Quota checks denied by resource and reason.",
		}, []string{"resource", "reason"}),
		SweepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamride",
			Subsystem: "billing",
			Name:      "sweep_transitions_total",
			Help:      "State transitions and dispatches performed by sweeper jobs.",
		}, []string{"job", "result"}),
	}
	reg.MustRegister(m.WebhookEvents, m.QuotaDenials, m.SweepTransitions)
	return m
}
