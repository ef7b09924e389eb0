package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_NeverThrowsOnMalformedInput(t *testing.T) {
	inputs := []any{
		nil,
		"x",
		[]any{},
		map[string]any{},
		42.0,
		true,
	}
	for _, in := range inputs {
		st := Migrate(in)
		require.NotNil(t, st)
		assert.Equal(t, SchemaVersion, st.SchemaVersion)
		assert.NotNil(t, st.Index.Folders)
		assert.NotNil(t, st.Index.Bookmarks)
		assert.NotNil(t, st.Index.IDToKey)
		assert.NotNil(t, st.Dedupe.Buckets)
		assert.Equal(t, StatusDisconnected, st.Session.Status)
		assert.Equal(t, 25000, st.Session.HeartbeatMs)
	}
}

func TestMigrate_PreservesRecognizedFieldsAndRebuildsInverse(t *testing.T) {
	raw := map[string]any{
		"schemaVersion": 1.0,
		"index": map[string]any{
			"folders":   map[string]any{RootKey: "100", "note:Projects/Alpha.md": "201"},
			"bookmarks": map[string]any{"bookmark:55": "55"},
		},
		"queue": []any{
			map[string]any{
				"event": map[string]any{
					"eventId":    "e1",
					"type":       "bookmark_created",
					"bookmarkId": "55",
					"managedKey": "bookmark:55",
					"occurredAt": "2024-01-01T00:00:00Z",
				},
				"retryCount": 1.0,
				"enqueuedAt": "2024-01-01T00:00:00Z",
			},
		},
		"suppression": map[string]any{
			"applyEpoch":    false,
			"cooldownUntil": "2024-01-01T00:00:03Z",
		},
	}

	st := Migrate(raw)

	assert.Equal(t, "100", st.Index.Folders[RootKey])
	assert.Equal(t, RootKey, st.Index.IDToKey["100"])
	assert.Equal(t, "bookmark:55", st.Index.IDToKey["55"])
	require.Len(t, st.Queue, 1)
	assert.Equal(t, 1, st.Queue[0].RetryCount)
	assert.False(t, st.Suppression.ApplyEpoch)
	assert.Greater(t, st.Suppression.CooldownUntil, int64(0))
}

func TestMigrate_NeverDropsQueueItems(t *testing.T) {
	raw := map[string]any{
		"queue": []any{
			map[string]any{"event": map[string]any{"eventId": "e1"}},
			map[string]any{"event": map[string]any{"eventId": "e2"}},
			map[string]any{"event": map[string]any{"eventId": "e3"}},
		},
	}
	st := Migrate(raw)
	assert.Len(t, st.Queue, 3)
}

func TestMigrate_PreservesMalformedQueueEntriesAsZeroValues(t *testing.T) {
	raw := map[string]any{
		"queue": []any{
			map[string]any{"event": map[string]any{"eventId": "e1"}},
			"not-an-object",
			42.0,
			map[string]any{"event": map[string]any{"eventId": "e2"}},
		},
	}
	st := Migrate(raw)
	require.Len(t, st.Queue, 4)
	assert.Equal(t, "e1", st.Queue[0].Event.EventID)
	assert.Equal(t, QueueItem{}, st.Queue[1])
	assert.Equal(t, QueueItem{}, st.Queue[2])
	assert.Equal(t, "e2", st.Queue[3].Event.EventID)
}
