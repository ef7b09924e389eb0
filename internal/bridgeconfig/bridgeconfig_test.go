package bridgeconfig

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmbridge/bmbridge/testutil"
)

type fakeFS struct {
	files map[string]string
}

func (f fakeFS) Open(filename string) (io.ReadCloser, error) {
	content, ok := f.files[filename]
	if !ok {
		return nil, assertNotFound{}
	}
	return io.NopCloser(bytes.NewReader([]byte(content))), nil
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

type fakeWatcher struct {
	ch chan struct{}
}

func (f *fakeWatcher) Watch(path string) (<-chan struct{}, error) { return f.ch, nil }

func TestGet_BootstrapsFromYAMLOnFirstRun(t *testing.T) {
	kv := testutil.NewFakeKVStore()
	fs := fakeFS{files: map[string]string{
		"bmbridge.yaml": "activeClientId: c1\nprofiles:\n  - clientId: c1\n    wsUrl: wss://bridge.example/ws\n    token: tok\n    enabled: true\n    priority: 10\n",
	}}
	s := New(kv, fs, nil, "bmbridge.yaml", zerolog.Nop())

	cfg, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c1", cfg.ActiveClientID)
	require.Len(t, cfg.Profiles, 1)
	assert.Equal(t, "wss://bridge.example/ws", cfg.Profiles[0].WSURL)

	raw, ok := kv.Raw(StorageKey)
	assert.True(t, ok)
	assert.NotEmpty(t, raw)
}

func TestGet_AbsentBootstrapFileIsNotAnError(t *testing.T) {
	kv := testutil.NewFakeKVStore()
	s := New(kv, fakeFS{files: map[string]string{}}, nil, "bmbridge.yaml", zerolog.Nop())

	cfg, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cfg.Profiles)
}

func TestGet_PersistedRecordWins_NeverReBootstraps(t *testing.T) {
	kv := testutil.NewFakeKVStore()
	fs := fakeFS{files: map[string]string{
		"bmbridge.yaml": "activeClientId: c1\nprofiles:\n  - clientId: c1\n    token: tok\n    enabled: true\n",
	}}
	s := New(kv, fs, nil, "bmbridge.yaml", zerolog.Nop())

	require.NoError(t, s.Set(context.Background(), BridgeConfig{
		ActiveClientID: "c2",
		Profiles:       []Profile{{ClientID: "c2", Token: "other", Enabled: true}},
	}))

	cfg, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c2", cfg.ActiveClientID)
	require.Len(t, cfg.Profiles, 1)
	assert.Equal(t, "c2", cfg.Profiles[0].ClientID)
}

func TestResolve_ActiveAndEnabledWins(t *testing.T) {
	cfg := BridgeConfig{
		ActiveClientID: "c2",
		Profiles: []Profile{
			{ClientID: "c1", Enabled: true, Priority: 999},
			{ClientID: "c2", Enabled: true, Priority: 0},
		},
	}
	p, ok := Resolve(cfg)
	require.True(t, ok)
	assert.Equal(t, "c2", p.ClientID)
}

func TestResolve_SkipsDisabledActiveProfile(t *testing.T) {
	cfg := BridgeConfig{
		ActiveClientID: "c2",
		Profiles: []Profile{
			{ClientID: "c1", Enabled: true, Priority: 5},
			{ClientID: "c2", Enabled: false, Priority: 999},
		},
	}
	p, ok := Resolve(cfg)
	require.True(t, ok)
	assert.Equal(t, "c1", p.ClientID, "disabled active profile must never win even at higher priority")
}

func TestResolve_FallsBackToHighestPriorityEnabled(t *testing.T) {
	cfg := BridgeConfig{
		Profiles: []Profile{
			{ClientID: "low", Enabled: true, Priority: 1},
			{ClientID: "high", Enabled: true, Priority: 50},
			{ClientID: "disabled", Enabled: false, Priority: 999},
		},
	}
	p, ok := Resolve(cfg)
	require.True(t, ok)
	assert.Equal(t, "high", p.ClientID)
}

func TestResolve_FallsBackToFirstProfileWhenNoneEnabled(t *testing.T) {
	cfg := BridgeConfig{Profiles: []Profile{{ClientID: "only", Enabled: false}}}
	p, ok := Resolve(cfg)
	require.True(t, ok)
	assert.Equal(t, "only", p.ClientID)
}

func TestResolve_NoProfilesReturnsNotOK(t *testing.T) {
	_, ok := Resolve(BridgeConfig{})
	assert.False(t, ok)
}

func TestWatchForReload_MergesOnlyNewClientIDs(t *testing.T) {
	kv := testutil.NewFakeKVStore()
	fs := fakeFS{files: map[string]string{
		"bmbridge.yaml": "profiles:\n  - clientId: c1\n    token: tok\n    enabled: false\n  - clientId: c2\n    token: tok2\n    enabled: true\n",
	}}
	watcher := &fakeWatcher{ch: make(chan struct{}, 1)}
	s := New(kv, fs, watcher, "bmbridge.yaml", zerolog.Nop())

	require.NoError(t, s.Set(context.Background(), BridgeConfig{
		Profiles: []Profile{{ClientID: "c1", Token: "operator-edited", Enabled: true, Priority: 7}},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.WatchForReload(ctx))

	watcher.ch <- struct{}{}

	require.Eventually(t, func() bool {
		cfg, err := s.Get(context.Background())
		return err == nil && len(cfg.Profiles) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cfg, err := s.Get(context.Background())
	require.NoError(t, err)
	for _, p := range cfg.Profiles {
		if p.ClientID == "c1" {
			assert.Equal(t, "operator-edited", p.Token, "existing profile must never be overwritten by a reload")
		}
	}
}
