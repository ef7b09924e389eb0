package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/testutil"
	"github.com/prometheus/client_golang/prometheus"
	prommetricstestutil "github.com/prometheus/client_golang/prometheus/testutil"
)

func newSharedForTest(t *testing.T) *state.Shared {
	t.Helper()
	store, err := state.NewStore(testutil.NewFakeKVStore(), zerolog.Nop())
	require.NoError(t, err)
	st, err := store.Load(context.Background())
	require.NoError(t, err)
	return state.NewShared(st, store)
}

func TestCollector_CollectSamplesQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	shared := newSharedForTest(t)

	require.NoError(t, shared.Mutate(context.Background(), func(st *state.State) error {
		st.Queue = append(st.Queue,
			state.QueueItem{Event: state.ReverseEvent{EventID: "e1"}},
			state.QueueItem{Event: state.ReverseEvent{EventID: "e2"}},
		)
		return nil
	}))

	c := NewCollector(m, shared)
	c.Collect()

	require.Equal(t, 2.0, prommetricstestutil.ToFloat64(m.QueueDepth))
}

func TestCollector_CollectSamplesSessionStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	shared := newSharedForTest(t)

	require.NoError(t, shared.Mutate(context.Background(), func(st *state.State) error {
		st.Session.Status = state.StatusConnected
		return nil
	}))

	c := NewCollector(m, shared)
	c.Collect()

	require.Equal(t, 1.0, prommetricstestutil.ToFloat64(m.SessionStatus.WithLabelValues("connected")))
	require.Equal(t, 0.0, prommetricstestutil.ToFloat64(m.SessionStatus.WithLabelValues("disconnected")))
}

func TestCollector_RunSamplesPeriodically(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	shared := newSharedForTest(t)

	c := NewCollector(m, shared)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 20*time.Millisecond)
		close(done)
	}()

	// Collect() runs once immediately, before the ticker fires.
	require.Eventually(t, func() bool {
		return prommetricstestutil.ToFloat64(m.QueueDepth) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, shared.Mutate(context.Background(), func(st *state.State) error {
		st.Queue = append(st.Queue, state.QueueItem{Event: state.ReverseEvent{EventID: "e1"}})
		return nil
	}))

	require.Eventually(t, func() bool {
		return prommetricstestutil.ToFloat64(m.QueueDepth) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
