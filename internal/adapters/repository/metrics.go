package repository

import (
	"time"

	"github.com/okian/dutyqueue/pkg/metrics"
)

// observe records the latency of a store operation started at start.
func observe(operation string, start time.Time) {
	metrics.RecordStoreLatency(operation, float64(time.Since(start).Microseconds())/1000.0)
}
