package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every agvfleet collector. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// LinkConnected is 1 while the vehicle link is connected.
	LinkConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agvfleet_link_connected",
			Help: "Whether the vehicle link is connected (1) or not (0).",
		},
		[]string{"vehicle"},
	)

	LinkTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvfleet_link_transitions_total",
			Help: "Link state machine transitions.",
		},
		[]string{"vehicle", "from", "to"},
	)

	FramesDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvfleet_frames_decoded_total",
			Help: "Inbound frames that passed length and checksum verification.",
		},
		[]string{"vehicle", "func"},
	)

	// FramesRejectedTotal counts dropped inbound frames. reason: crc/length/escape/short/foreign/payload.
	FramesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvfleet_frames_rejected_total",
			Help: "Inbound frames dropped by the codec or the payload router.",
		},
		[]string{"vehicle", "reason"},
	)

	BytesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvfleet_bytes_written_total",
			Help: "Framed bytes written to vehicle sockets.",
		},
		[]string{"vehicle"},
	)

	QueueDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvfleet_queue_discarded_total",
			Help: "Outbound packets discarded because the link went down.",
		},
		[]string{"vehicle"},
	)

	StateUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvfleet_state_updates_total",
			Help: "Heartbeat replies that changed vehicle state.",
		},
		[]string{"vehicle"},
	)

	CommandResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvfleet_command_results_total",
			Help: "Command admission results.",
		},
		[]string{"command", "result"},
	)

	LandmarkOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvfleet_landmark_operations_total",
			Help: "Landmark registry operations by outcome.",
		},
		[]string{"op", "result"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agvfleet_events_dropped_total",
			Help: "Vehicle events a slow sink could not accept.",
		},
		[]string{"sink"},
	)

	SnapshotUploadSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agvfleet_snapshot_upload_seconds",
			Help:    "Latency of fleet snapshot uploads to object storage.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		LinkConnected,
		LinkTransitionsTotal,
		FramesDecodedTotal,
		FramesRejectedTotal,
		BytesWrittenTotal,
		QueueDiscardedTotal,
		StateUpdatesTotal,
		CommandResultsTotal,
		LandmarkOperationsTotal,
		EventsDroppedTotal,
		SnapshotUploadSeconds,
	)
}

// ObserveLandmark records a registry operation.
func ObserveLandmark(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "refused"
	}
	LandmarkOperationsTotal.WithLabelValues(op, result).Inc()
}
