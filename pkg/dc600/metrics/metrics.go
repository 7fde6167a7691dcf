// Package metrics defines the Prometheus instrumentation the engine
// updates as it decodes frames and manages sessions, in the same
// package-level-vars-plus-Register() shape the rest of this stack's
// ingestion services use.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FramesDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc600_frames_decoded_total",
			Help: "Frames successfully decoded by the frame codec.",
		},
		[]string{"mode"},
	)

	FramesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc600_frames_dropped_total",
			Help: "Frames dropped due to a FrameError, by reason.",
		},
		[]string{"reason"},
	)

	MessagesDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc600_messages_dispatched_total",
			Help: "Messages routed through the dispatcher, by message id.",
		},
		[]string{"message_id"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dc600_active_sessions",
			Help: "Live DeviceSessions in the registry.",
		},
	)

	ActiveSubPackageAssemblies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dc600_active_subpackage_assemblies",
			Help: "In-progress multimedia sub-package assemblies across all sessions.",
		},
	)

	CorrelationTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dc600_correlation_table_size",
			Help: "Live EventMediaCorrelation entries across all sessions.",
		},
	)

	AlarmAttachmentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc600_alarm_attachment_requests_total",
			Help: "0x9208 alarm attachment upload requests issued.",
		},
		[]string{"alarm_category"},
	)
)

// Register registers every collector in this package with the default
// Prometheus registry. Called once at startup by the engine's owner.
func Register() {
	prometheus.MustRegister(
		FramesDecodedTotal,
		FramesDroppedTotal,
		MessagesDispatchedTotal,
		ActiveSessions,
		ActiveSubPackageAssemblies,
		CorrelationTableSize,
		AlarmAttachmentRequestsTotal,
	)
}
