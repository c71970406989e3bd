package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "posstore"

	metricLabelHandler = "handler"
	metricLabelStatus  = "status"
	metricLabelSource  = "source"
	metricLabelKind    = "kind"
	metricLabelTrigger = "trigger"
	metricLabelDomain  = "domain"
	metricLabelField   = "field"
	metricLabelRemote  = "remote"
)

var (
	// ServiceRequestCounter count the number of requests for each service function
	ServiceRequestCounter = newCounterVec(
		"service_request_count",
		"Count of requests for each handler",
		metricLabelHandler, metricLabelStatus, metricLabelSource,
	)
	// ServiceRequestDuration observe the duration of requests for each service function
	ServiceRequestDuration = newSummaryVec(
		"service_request_duration_seconds",
		"Seconds to unmarshal requests, execute a service function and marshal its reponses",
		metricLabelHandler, metricLabelStatus, metricLabelSource,
	)
	// NumSocketsGauge keep track of the total number of open sockets
	NumSocketsGauge = newGaugeVec(
		"num_sockets_total",
		"Total number of currently open socket connections",
		metricLabelRemote,
	)
	// SnapshotsCreatedCounter count the number of snapshots built per kind
	SnapshotsCreatedCounter = newCounterVec(
		"snapshots_created_count",
		"Number of snapshots built",
		metricLabelKind,
	)
	// ExportsCompletedCounter count the number of successful exports
	ExportsCompletedCounter = newCounterVec(
		"exports_completed_count",
		"Number of exports that were successfully completed",
		metricLabelKind, metricLabelTrigger,
	)
	// ExportsFailedCounter count the number of exports that had an error
	ExportsFailedCounter = newCounterVec(
		"exports_failed_count",
		"Number of exports that failed due to an error",
		metricLabelTrigger,
	)
	// ExportDuration observe the duration of each export
	ExportDuration = newSummaryVec(
		"export_duration_seconds",
		"Duration in seconds for each export",
		metricLabelKind,
	)
	// FallbackReadCounter count the reads that fell back to persisted data
	FallbackReadCounter = newCounterVec(
		"fallback_read_count",
		"Number of snapshot reads served from storage instead of memory",
		metricLabelDomain,
	)
	// RestoreFieldCounter count the restore outcome per field
	RestoreFieldCounter = newCounterVec(
		"restore_field_count",
		"Number of restored, skipped or absent snapshot fields",
		metricLabelField, metricLabelStatus,
	)
	// HistoryPersistFailedCounter count the number of failed attempts to persist an export
	HistoryPersistFailedCounter = newCounterVec(
		"history_persist_failed_count",
		"Number of failures to store an export in the backup history",
	)
	// SettingsSaveFailedCounter count the number of failed settings saves
	SettingsSaveFailedCounter = newCounterVec(
		"settings_save_failed_count",
		"Number of failures to serialize or persist settings",
	)
)

func newSummaryVec(name, help string, labels ...string) *prometheus.SummaryVec {
	vec := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}
