// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package metrics holds the prometheus collectors of the custody client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "custody"

	statusSuccess = "success"
	statusError   = "error"

	unknownLabel = "unknown"
)

var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain_provider",
		Name:      "requests_total",
		Help:      "Count of chain provider requests.",
	}, []string{"operation", "network", "status"})
	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chain_provider",
		Name:      "request_duration_seconds",
		Help:      "Duration of chain provider requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "network", "status"})
)

// Provider tracks metrics for calls to a chain data provider.
type Provider struct {
	network string
}

// NewProvider constructs a metrics collector for provider calls on the given
// network.
func NewProvider(network string) *Provider {
	if network == "" {
		network = unknownLabel
	}

	return &Provider{network: network}
}

// Observe records a single provider call outcome and duration.
func (m *Provider) Observe(operation string, err error, started time.Time) {
	status := statusOf(err)

	providerRequestsTotal.WithLabelValues(
		operation, m.network, status,
	).Inc()
	providerRequestDuration.WithLabelValues(
		operation, m.network, status,
	).Observe(time.Since(started).Seconds())
}

func statusOf(err error) string {
	if err != nil {
		return statusError
	}

	return statusSuccess
}
