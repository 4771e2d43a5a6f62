package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "catalogstore", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "catalogstore", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "catalogstore", Name: "store_operations_total", Help: "Store operations by operation and result kind."},
		[]string{"op", "result"},
	)
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "catalogstore", Name: "store_operation_duration_seconds", Help: "Latency of store operations.", Buckets: prometheus.DefBuckets},
		[]string{"op"},
	)
	SnapshotsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "catalogstore", Name: "snapshots_saved_total", Help: "Snapshots durably written."},
	)
	LockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "catalogstore", Name: "lock_wait_seconds", Help: "Time spent acquiring store locks by locker type.", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5}},
		[]string{"locker"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(StoreOperations)
	reg.MustRegister(StoreOperationDuration)
	reg.MustRegister(SnapshotsSaved)
	reg.MustRegister(LockWait)
}

// ObserveOp records one store operation. result is "ok" or an error kind.
func ObserveOp(op, result string, started time.Time) {
	StoreOperations.WithLabelValues(op, result).Inc()
	StoreOperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
