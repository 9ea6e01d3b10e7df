// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flowOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "flow",
		Name:      "operations_total",
		Help:      "Count of custody flow operations by outcome.",
	}, []string{"operation", "status"})
	flowOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "flow",
		Name:      "operation_duration_seconds",
		Help:      "Duration of custody flow operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
	flowFundsAtScript = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "flow",
		Name:      "funds_at_script",
		Help:      "Number of funds held at the current script address.",
	})
)

// Flow tracks metrics for the operations driven by the custody controller.
type Flow struct{}

// NewFlow constructs a metrics collector for custody flow operations.
func NewFlow() *Flow {
	return &Flow{}
}

// Observe records a single flow operation outcome and duration.
func (m *Flow) Observe(operation string, err error, started time.Time) {
	status := statusOf(err)

	flowOperationsTotal.WithLabelValues(operation, status).Inc()
	flowOperationDuration.WithLabelValues(operation, status).Observe(
		time.Since(started).Seconds(),
	)
}

// SetFunds records the size of the latest fund set.
func (m *Flow) SetFunds(n int) {
	flowFundsAtScript.Set(float64(n))
}
