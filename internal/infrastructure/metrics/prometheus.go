package metrics

import (
	"net/http"

	"merchant-connect-layer/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "merchant_connect"

// Recorder implements ports.Metrics with Prometheus counters
type Recorder struct {
	registry *prometheus.Registry

	refreshes     *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
	registrations *prometheus.CounterVec
	ingested      *prometheus.CounterVec
	tasks         *prometheus.CounterVec
}

// NewRecorder creates a recorder on its own registry, including Go runtime collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"provider", "outcome"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_recovery_total",
			Help:      "Store ownership recovery attempts from webhook history.",
		}, []string{"provider", "outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_registration_total",
			Help:      "Webhook subscription create results per event.",
		}, []string{"provider", "event", "outcome"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_ingested_total",
			Help:      "Inbound webhook deliveries appended to the event log.",
		}, []string{"provider", "event"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_task_total",
			Help:      "Background task executions by outcome.",
		}, []string{"task", "outcome"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.refreshes,
		r.recoveries,
		r.registrations,
		r.ingested,
		r.tasks,
	)
	return r
}

func (r *Recorder) ObserveRefresh(provider domain.Provider, outcome string) {
	r.refreshes.WithLabelValues(string(provider), outcome).Inc()
}

func (r *Recorder) ObserveRecovery(provider domain.Provider, outcome string) {
	r.recoveries.WithLabelValues(string(provider), outcome).Inc()
}

func (r *Recorder) ObserveWebhookRegistration(provider domain.Provider, event, outcome string) {
	r.registrations.WithLabelValues(string(provider), event, outcome).Inc()
}

// ObserveWebhookIngest counts deliveries. Unknown event names are bucketed so
// a misbehaving sender cannot grow the label set without bound.
func (r *Recorder) ObserveWebhookIngest(provider domain.Provider, event string) {
	if event == "" || len(event) > 64 {
		event = "unknown"
	}
	r.ingested.WithLabelValues(string(provider), event).Inc()
}

func (r *Recorder) ObserveTask(taskType, outcome string) {
	r.tasks.WithLabelValues(taskType, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
