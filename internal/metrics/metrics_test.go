package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics_AllCollectorsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	require.NotNil(t, m)

	assert.NotNil(t, m.QueueDepth)
	assert.NotNil(t, m.QueueRetries)
	assert.NotNil(t, m.QueueQuarantines)
	assert.NotNil(t, m.AckStatusTotal)
	assert.NotNil(t, m.ApplyOutcomeTotal)
	assert.NotNil(t, m.SessionStatus)
	assert.NotNil(t, m.ReconnectAttempts)
	assert.NotNil(t, m.HeartbeatRTTSeconds)
	assert.NotNil(t, m.DedupeHits)
	assert.NotNil(t, m.DedupeMisses)
	assert.NotNil(t, m.SuppressionSkips)
}

func TestSetSessionStatus_OnlyActiveStatusReadsOne(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)

	m.SetSessionStatus("connected")

	for _, s := range sessionStatuses {
		got := testutil.ToFloat64(m.SessionStatus.WithLabelValues(s))
		if s == "connected" {
			assert.Equal(t, 1.0, got)
		} else {
			assert.Equal(t, 0.0, got)
		}
	}
}

func TestSetSessionStatus_SwitchingActiveZeroesThePrevious(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)

	m.SetSessionStatus("connecting")
	m.SetSessionStatus("connected")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionStatus.WithLabelValues("connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionStatus.WithLabelValues("connected")))
}

func TestQueueDepth_AccumulatesIndependentlyOfRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)

	m.QueueDepth.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))

	m.QueueDepth.Set(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueDepth))
}
