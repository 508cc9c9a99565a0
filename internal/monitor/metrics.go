package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ptscripts/ptbot/internal/statuspage"
)

// Metrics contains the Prometheus metrics of the status monitor.
type Metrics struct {
	Ticks          *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	LastSuccess    prometheus.Gauge
	ActiveMonitors prometheus.Gauge

	MessagesEdited  prometheus.Counter
	MessagesCreated prometheus.Counter
	SelfHeals       prometheus.Counter
	Disabled        *prometheus.CounterVec
	GuildErrors     prometheus.Counter
	PersistErrors   prometheus.Counter

	ServiceStatus *prometheus.GaugeVec
	Overall       *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates the metrics on a private registry, together with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Ticks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "ticks_total",
		Help:      "Reconciliation ticks by result (ok, fetch_failed, idle)",
	}, []string{"result"})

	m.TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "tick_duration_seconds",
		Help:      "Duration of reconciliation ticks that fetched the status page",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	m.LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last tick that fetched the status page",
	})

	m.ActiveMonitors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "active_monitors",
		Help:      "Guilds with an active status monitor",
	})

	m.MessagesEdited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "messages_edited_total",
		Help:      "Status messages updated in place",
	})

	m.MessagesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "messages_created_total",
		Help:      "Status messages created",
	})

	m.SelfHeals = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "self_heals_total",
		Help:      "Status messages recreated after being deleted or becoming uneditable",
	})

	m.Disabled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "disabled_total",
		Help:      "Monitors disabled, by reason",
	}, []string{"reason"})

	m.GuildErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "guild_errors_total",
		Help:      "Transient per-guild failures left for the next tick",
	})

	m.PersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ptbot",
		Subsystem: "monitor",
		Name:      "persist_errors_total",
		Help:      "Failed writes of monitor state to the settings store",
	})

	m.ServiceStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ptbot",
		Subsystem: "statuspage",
		Name:      "service_status",
		Help:      "Last parsed status per service: 0 unavailable, 1 operational, 2 degraded, 3 partial outage, 4 major outage, 5 maintenance",
	}, []string{"service"})

	m.Overall = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ptbot",
		Subsystem: "statuspage",
		Name:      "overall",
		Help:      "1 for the current overall classification, 0 for the others",
	}, []string{"state"})

	m.registry.MustRegister(
		m.Ticks, m.TickDuration, m.LastSuccess, m.ActiveMonitors,
		m.MessagesEdited, m.MessagesCreated, m.SelfHeals, m.Disabled,
		m.GuildErrors, m.PersistErrors, m.ServiceStatus, m.Overall,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for other collectors and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeSnapshot(snap *statuspage.Snapshot, took time.Duration) {
	m.Ticks.WithLabelValues("ok").Inc()
	m.TickDuration.Observe(took.Seconds())
	m.LastSuccess.Set(float64(snap.FetchedAt.Unix()))

	for _, ss := range snap.Services {
		m.ServiceStatus.WithLabelValues(ss.Service.ID).Set(statusValue(ss.Status))
	}
	for _, o := range []statuspage.Overall{
		statuspage.OverallOperational, statuspage.OverallPartial,
		statuspage.OverallMajor, statuspage.OverallUnknown,
	} {
		v := 0.0
		if snap.Overall == o {
			v = 1
		}
		m.Overall.WithLabelValues(string(o)).Set(v)
	}
}

func statusValue(s statuspage.Status) float64 {
	switch s {
	case statuspage.StatusOperational:
		return 1
	case statuspage.StatusDegraded:
		return 2
	case statuspage.StatusPartialOutage:
		return 3
	case statuspage.StatusMajorOutage:
		return 4
	case statuspage.StatusMaintenance:
		return 5
	default:
		return 0
	}
}
