package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func delta(t *testing.T, collector prometheus.Collector,
	observe func()) float64 {

	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)

	return after - before
}

// TestProviderRecords checks that provider calls are counted by status.
func TestProviderRecords(t *testing.T) {
	m := NewProvider("")
	start := time.Now().Add(-time.Second)

	inc := delta(t, providerRequestsTotal.WithLabelValues(
		"submit", unknownLabel, statusSuccess,
	), func() {
		m.Observe("submit", nil, start)
	})
	require.InDelta(t, 1, inc, 0)

	inc = delta(t, providerRequestsTotal.WithLabelValues(
		"fetch_utxos", unknownLabel, statusError,
	), func() {
		m.Observe("fetch_utxos", errors.New("boom"), start)
	})
	require.InDelta(t, 1, inc, 0)
}

// TestFlowRecords checks that flow operations and fund counts are recorded.
func TestFlowRecords(t *testing.T) {
	m := NewFlow()
	start := time.Now().Add(-200 * time.Millisecond)

	inc := delta(t, flowOperationsTotal.WithLabelValues(
		"lock", statusError,
	), func() {
		m.Observe("lock", errors.New("declined"), start)
	})
	require.InDelta(t, 1, inc, 0)

	m.SetFunds(3)
	require.InDelta(t, 3, testutil.ToFloat64(flowFundsAtScript), 0)
}
