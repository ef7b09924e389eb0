package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bmbridge/bmbridge/internal/bridgeconfig"
	"github.com/bmbridge/bmbridge/internal/capability"
	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/testutil"
)

// fakeTimers is a capability.Timers that fires nothing on its own; the
// test drives the queue through TriggerSync instead of waiting on
// debounce/alarm timers.
type fakeTimers struct {
	mu      sync.Mutex
	pending int
}

func (f *fakeTimers) After(_ time.Duration, _ func()) capability.CancelFunc {
	f.mu.Lock()
	f.pending++
	f.mu.Unlock()
	return func() {}
}

func (f *fakeTimers) Repeating(_ time.Duration, _ func()) capability.CancelFunc {
	return func() {}
}

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	b, err := New(context.Background(), Deps{
		KV:        testutil.NewFakeKVStore(),
		Bookmarks: testutil.NewFakeBookmarkStore(),
		Timers:    &fakeTimers{},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return b
}

func TestNew_AssemblesWithoutError(t *testing.T) {
	b := newTestBridge(t)
	require.NotNil(t, b)
	require.Equal(t, 0, b.QueueDepth())
}

func TestGetSetConfig_RoundTrips(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	cfg, err := b.GetConfig(ctx)
	require.NoError(t, err)
	require.Empty(t, cfg.Profiles)

	cfg.Profiles = []bridgeconfig.Profile{{ClientID: "c1", WSURL: "wss://example.test/ws", Token: "t1", Enabled: true}}
	cfg.ActiveClientID = "c1"
	require.NoError(t, b.SetConfig(ctx, cfg))

	got, err := b.GetConfig(ctx)
	require.NoError(t, err)
	require.Len(t, got.Profiles, 1)
	require.Equal(t, "c1", got.Profiles[0].ClientID)
}

func TestHandle_CreatedEventEnqueuesAndIncrementsQueueDepth(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	b.Handle(ctx, capability.BookmarkEvent{
		Kind: capability.EventCreated,
		ID:   "b1",
		Node: capability.BookmarkNode{ID: "b1", ParentID: "0", Title: "example", URL: "https://example.test"},
	})

	require.Equal(t, 1, b.QueueDepth())
}

func TestTriggerSync_WithNoProfileLeavesItemQueuedForRetry(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	b.Handle(ctx, capability.BookmarkEvent{
		Kind: capability.EventCreated,
		ID:   "b1",
		Node: capability.BookmarkNode{ID: "b1", ParentID: "0", Title: "example", URL: "https://example.test"},
	})
	require.Equal(t, 1, b.QueueDepth())

	// No profile is configured, so the send fails and the item is
	// retried rather than dropped.
	require.NoError(t, b.TriggerSync(ctx))
	require.Equal(t, 1, b.QueueDepth())
}

func TestDebugEvents_RecordsCaptureSkipAndClears(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	require.NoError(t, b.shared.Mutate(ctx, func(st *state.State) error {
		st.ImportInProgress = true
		return nil
	}))

	b.Handle(ctx, capability.BookmarkEvent{
		Kind: capability.EventCreated,
		ID:   "b1",
		Node: capability.BookmarkNode{ID: "b1", ParentID: "0", Title: "example", URL: "https://example.test"},
	})

	require.Equal(t, 0, b.QueueDepth())
	require.NotEmpty(t, b.DebugEvents())

	b.ClearDebugEvents()
	require.Empty(t, b.DebugEvents())
}

func TestSessionSummary_DefaultsToDisconnected(t *testing.T) {
	b := newTestBridge(t)
	require.Equal(t, state.StatusDisconnected, b.SessionSummary().Status)
}
