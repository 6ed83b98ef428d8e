package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus collectors on a private registry.
type Metrics struct {
	registry          *prometheus.Registry
	sessionsActive    prometheus.Gauge
	submissions       *prometheus.CounterVec
	decisions         *prometheus.CounterVec
	announcementEdits *prometheus.CounterVec
	throttled         prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventbot_sessions_active",
			Help: "Submission sessions currently held in memory",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbot_submissions_total",
			Help: "Submissions persisted, by event type",
		}, []string{"event"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbot_decisions_total",
			Help: "Moderator decisions, by outcome",
		}, []string{"outcome"}),
		announcementEdits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbot_announcement_edits_total",
			Help: "Announcement message edits, by outcome",
		}, []string{"outcome"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventbot_throttled_total",
			Help: "Interactions refused by the per-user throttle",
		}),
	}

	registry.MustRegister(
		m.sessionsActive,
		m.submissions,
		m.decisions,
		m.announcementEdits,
		m.throttled,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetSessionsActive(n int) {
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) SubmissionCreated(eventType string) {
	m.submissions.WithLabelValues(eventType).Inc()
}

// Decision records "approved", "rejected" or "conflict".
func (m *Metrics) Decision(outcome string) {
	m.decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AnnouncementEdit(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.announcementEdits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Throttled() {
	m.throttled.Inc()
}
