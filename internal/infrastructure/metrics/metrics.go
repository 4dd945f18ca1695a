package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "twcdirector"

// Metrics holds the director's Prometheus collectors.
//
// All Record methods are safe on a nil *Metrics, so components can be
// built without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	DiscoveryPublished  *prometheus.CounterVec
	DiscoveryDuplicates prometheus.Counter
	DiscoveryQueueDepth *prometheus.GaugeVec
	DiscoveryProcessed  *prometheus.CounterVec

	TelemetryMessages *prometheus.CounterVec
	CallbackFailures  *prometheus.CounterVec

	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	EntitiesActive *prometheus.GaugeVec
	EventsEmitted  *prometheus.CounterVec

	GatewayRestarts prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		DiscoveryPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "published_total",
			Help:      "Discovery objects broadcast to platform queues",
		}, []string{"kind"}),

		DiscoveryDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "duplicates_total",
			Help:      "Discovery objects dropped because the device was already broadcast",
		}),

		DiscoveryQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "queue_depth",
			Help:      "Objects waiting in each platform's discovery queue",
		}, []string{"consumer"}),

		DiscoveryProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "processed_total",
			Help:      "Discovery objects handled by platform processors",
		}, []string{"platform", "result"}), // result: created, filtered, failed

		TelemetryMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "messages_total",
			Help:      "Gateway telemetry messages applied to peripherals",
		}, []string{"category"}),

		CallbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "callback_failures_total",
			Help:      "Entity callbacks that returned an error or panicked",
		}, []string{"category"}),

		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "commands_total",
			Help:      "Commands sent to the RS485 gateway",
		}, []string{"command", "result"}),

		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "command_duration_seconds",
			Help:      "Time from sending a command to its acknowledgement",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),

		EntitiesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "entities",
			Name:      "active",
			Help:      "Attached entities per platform",
		}, []string{"platform"}),

		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Trigger events delivered to sinks",
		}, []string{"sink", "result"}),

		GatewayRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "restarts_total",
			Help:      "Restarts of the managed RS485 gateway process",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DiscoveryPublished,
		m.DiscoveryDuplicates,
		m.DiscoveryQueueDepth,
		m.DiscoveryProcessed,
		m.TelemetryMessages,
		m.CallbackFailures,
		m.Commands,
		m.CommandDuration,
		m.EntitiesActive,
		m.EventsEmitted,
		m.GatewayRestarts,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordDiscoveryPublished counts one broadcast object.
func (m *Metrics) RecordDiscoveryPublished(kind string) {
	if m == nil {
		return
	}
	m.DiscoveryPublished.WithLabelValues(kind).Inc()
}

// RecordDiscoveryDuplicate counts one dropped re-broadcast.
func (m *Metrics) RecordDiscoveryDuplicate() {
	if m == nil {
		return
	}
	m.DiscoveryDuplicates.Inc()
}

// SetQueueDepth updates a consumer's queue depth.
func (m *Metrics) SetQueueDepth(consumer string, depth int) {
	if m == nil {
		return
	}
	m.DiscoveryQueueDepth.WithLabelValues(consumer).Set(float64(depth))
}

// RecordDiscoveryProcessed counts one handled discovery object.
func (m *Metrics) RecordDiscoveryProcessed(platform, result string) {
	if m == nil {
		return
	}
	m.DiscoveryProcessed.WithLabelValues(platform, result).Inc()
}

// RecordTelemetry counts one applied gateway message.
func (m *Metrics) RecordTelemetry(category string) {
	if m == nil {
		return
	}
	m.TelemetryMessages.WithLabelValues(category).Inc()
}

// RecordCallbackFailure counts one failed entity callback.
func (m *Metrics) RecordCallbackFailure(category string) {
	if m == nil {
		return
	}
	m.CallbackFailures.WithLabelValues(category).Inc()
}

// RecordCommand counts a gateway command and observes its round trip.
func (m *Metrics) RecordCommand(command, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, result).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// AddEntities adjusts the attached-entity gauge for a platform.
func (m *Metrics) AddEntities(platform string, delta int) {
	if m == nil {
		return
	}
	m.EntitiesActive.WithLabelValues(platform).Add(float64(delta))
}

// RecordEvent counts one trigger event delivery attempt.
func (m *Metrics) RecordEvent(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsEmitted.WithLabelValues(sink, result).Inc()
}

// RecordGatewayRestart counts one gateway restart.
func (m *Metrics) RecordGatewayRestart() {
	if m == nil {
		return
	}
	m.GatewayRestarts.Inc()
}
