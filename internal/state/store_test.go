package state

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmbridge/bmbridge/testutil"
)

func TestStore_LoadAbsentReturnsDefault(t *testing.T) {
	kv := testutil.NewFakeKVStore()
	store, err := NewStore(kv, zerolog.Nop())
	require.NoError(t, err)

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, st.SchemaVersion)
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	kv := testutil.NewFakeKVStore()
	store, err := NewStore(kv, zerolog.Nop())
	require.NoError(t, err)

	st := New()
	st.Index.Folders[RootKey] = "100"
	st.Index.IDToKey["100"] = RootKey
	st.Session.ActiveClientID = "bridge-1"

	require.NoError(t, store.Save(context.Background(), st))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "100", loaded.Index.Folders[RootKey])
	assert.Equal(t, "bridge-1", loaded.Session.ActiveClientID)
}

func TestStore_SaveCompressesLargeRecords(t *testing.T) {
	kv := testutil.NewFakeKVStore()
	store, err := NewStore(kv, zerolog.Nop())
	require.NoError(t, err)

	st := New()
	for i := 0; i < 500; i++ {
		st.Queue = append(st.Queue, QueueItem{Event: ReverseEvent{
			EventID:    "e",
			ManagedKey: strings.Repeat("x", 64),
		}})
	}
	require.NoError(t, store.Save(context.Background(), st))

	raw, ok := kv.Raw(StorageKey)
	require.True(t, ok)
	assert.Equal(t, zstdMagic, raw[:4])

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded.Queue, 500)
}

func TestStore_LoadMalformedJSONMigratesFromNil(t *testing.T) {
	kv := testutil.NewFakeKVStore()
	require.NoError(t, kv.Set(context.Background(), StorageKey, []byte("not json")))
	store, err := NewStore(kv, zerolog.Nop())
	require.NoError(t, err)

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, st.SchemaVersion)
}
