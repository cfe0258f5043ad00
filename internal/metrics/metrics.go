// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StudentsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_students_added_total",
		Help: "Students registered.",
	})

	RecordsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_records_recorded_total",
		Help: "Attendance records stored, by status bucket (present, absent, other).",
	}, []string{"status"})

	StoreLoadFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_store_load_fallbacks_total",
		Help: "Snapshot loads that fell back to an empty dataset.",
	}, []string{"backend", "reason"})

	StoreSaveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_store_save_failures_total",
		Help: "Snapshot saves that returned an error.",
	}, []string{"backend"})

	WriteLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_write_lock_wait_seconds",
		Help:    "Time spent waiting for the dataset write lock.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_events_published_total",
		Help: "Change events handed to the queue, by type and result.",
	}, []string{"type", "result"})

	AuditEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_audit_events_total",
		Help: "Change events consumed by the audit consumer.",
	}, []string{"type"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attendance_http_request_duration_seconds",
		Help:    "HTTP request latency by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

