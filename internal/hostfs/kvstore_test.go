package hostfs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStore_GetAbsentKeyReturnsNotOK(t *testing.T) {
	s, err := NewKVStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStore_SetThenGetRoundTrips(t *testing.T) {
	s, err := NewKVStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "bmbridge.config.v1", []byte(`{"a":1}`)))

	data, ok, err := s.Get(ctx, "bmbridge.config.v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestKVStore_SetOverwritesPreviousValue(t *testing.T) {
	s, err := NewKVStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("first")))
	require.NoError(t, s.Set(ctx, "k", []byte("second")))

	data, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(data))
}

func TestKVStore_WriteLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := NewKVStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))

	entries, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
