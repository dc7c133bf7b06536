// Package metrics declares the Prometheus collectors exported by Heron processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "heron"

var (
	// ForwardedMessages counts messages a forwarder relayed, by forwarder kind.
	ForwardedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forwarder",
			Name:      "messages_forwarded_total",
			Help:      "Messages relayed from inbound to outbound.",
		},
		[]string{"forwarder"},
	)

	// DroppedMessages counts messages overwritten in a depth-1 link before being consumed.
	DroppedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped by drop-oldest backpressure, by component and link.",
		},
		[]string{"component", "link"},
	)

	// MalformedMessages counts messages rejected by the envelope.
	MalformedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_malformed_total",
			Help:      "Messages that failed to decode and were dropped.",
		},
		[]string{"component", "channel"},
	)

	// PulsesSent counts heartbeats emitted by a supervisor.
	PulsesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "pulses_sent_total",
			Help:      "Heartbeat pulses pushed to the worker.",
		},
		[]string{"stage"},
	)

	// RelayedMessages counts data messages a supervisor relayed, by direction.
	RelayedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "messages_relayed_total",
			Help:      "Data messages relayed between the forwarder and the worker.",
		},
		[]string{"stage", "direction"},
	)

	// WorkerResidentBytes is the sampled RSS of the supervised worker process.
	WorkerResidentBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "worker_resident_bytes",
			Help:      "Resident set size of the worker process.",
		},
		[]string{"stage"},
	)

	// WorkerCPUPercent is the sampled CPU usage of the supervised worker process.
	WorkerCPUPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "worker_cpu_percent",
			Help:      "CPU usage of the worker process in percent.",
		},
		[]string{"stage"},
	)

	// Computes counts work function invocations by outcome (ok, error, placeholder).
	Computes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "computes_total",
			Help:      "Compute steps run by the worker.",
		},
		[]string{"stage", "outcome"},
	)

	// ComputeSeconds observes work function latency.
	ComputeSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "compute_seconds",
			Help:      "Work function latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"stage"},
	)

	// ParameterUpdates counts parameter payloads by result (applied, rejected, ignored).
	ParameterUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "parameter_updates_total",
			Help:      "Parameter payloads received by the worker.",
		},
		[]string{"stage", "result"},
	)

	// PulseAgeSeconds is the age of the last heartbeat seen by the liveness monitor.
	PulseAgeSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "pulse_age_seconds",
			Help:      "Seconds since the last heartbeat pulse.",
		},
		[]string{"stage"},
	)

	// WorkerState is 1 for the current lifecycle state of the worker, 0 otherwise.
	WorkerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "state",
			Help:      "Current worker lifecycle state.",
		},
		[]string{"stage", "state"},
	)

	// BridgeEvents counts MQTT bridge traffic by direction.
	BridgeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "events_total",
			Help:      "Messages moved by the MQTT bridge.",
		},
		[]string{"direction"},
	)
)
