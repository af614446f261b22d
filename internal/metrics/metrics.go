// Package metrics exposes bridge metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ezvizbridge"

// Metrics holds the bridge's Prometheus collectors on a private registry.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	polls         *prometheus.CounterVec
	pollDuration  prometheus.Histogram
	lastSuccess   prometheus.Gauge
	alarmTriggers *prometheus.CounterVec
	unlocks       *prometheus.CounterVec
	mqttConnected prometheus.Gauge
}

// New creates and registers the bridge metrics plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Status polls by result (ok, error).",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of status polls against the EZVIZ cloud.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_poll_timestamp_seconds",
			Help:      "Unix time of the last successful status poll.",
		}),
		alarmTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_triggers_total",
			Help:      "Alarm pulses triggered, by category.",
		}, []string{"category"}),
		unlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlock_commands_total",
			Help:      "Unlock commands by action and result.",
		}, []string{"action", "result"}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 when the MQTT broker connection is up.",
		}),
	}

	m.registry.MustRegister(
		m.polls,
		m.pollDuration,
		m.lastSuccess,
		m.alarmTriggers,
		m.unlocks,
		m.mqttConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Register adds an extra collector, such as a SnapshotCollector.
func (m *Metrics) Register(c prometheus.Collector) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(c)
}

// ObservePoll records one poll outcome.
func (m *Metrics) ObservePoll(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(resultLabel(ok)).Inc()
	m.pollDuration.Observe(duration.Seconds())
	if ok {
		m.lastSuccess.SetToCurrentTime()
	}
}

// AlarmTriggered records one alarm pulse for category.
func (m *Metrics) AlarmTriggered(category string) {
	if m == nil {
		return
	}
	m.alarmTriggers.WithLabelValues(category).Inc()
}

// UnlockCompleted records one unlock command.
func (m *Metrics) UnlockCompleted(action string, ok bool) {
	if m == nil {
		return
	}
	m.unlocks.WithLabelValues(action, resultLabel(ok)).Inc()
}

// SetMQTTConnected records the broker connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.mqttConnected.Set(1)
	} else {
		m.mqttConnected.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
