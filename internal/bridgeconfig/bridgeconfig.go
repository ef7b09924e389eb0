// Package bridgeconfig implements the bridge config store: the
// operator-editable profile list, persisted under its own KV key, with
// a resolution rule for picking the active profile and an optional
// first-run bootstrap from a local YAML file.
package bridgeconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/bmbridge/bmbridge/internal/capability"
)

// StorageKey is the stable KV key the bridge config record lives under.
const StorageKey = "bmbridge.config.v1"

// Profile is a single bridge endpoint the operator has configured.
type Profile struct {
	ClientID string `json:"clientId" yaml:"clientId"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	WSURL    string `json:"wsUrl,omitempty" yaml:"wsUrl,omitempty"`
	Token    string `json:"token" yaml:"token"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Priority int    `json:"priority" yaml:"priority"` // clamped to [-1000, 1000]
}

// BridgeConfig is the full operator-editable config record.
type BridgeConfig struct {
	ActiveClientID string    `json:"activeClientId" yaml:"activeClientId"`
	Profiles       []Profile `json:"profiles" yaml:"profiles"`
}

// bootstrapFile is the shape of the local YAML seed file.
type bootstrapFile struct {
	ActiveClientID string    `yaml:"activeClientId"`
	Profiles       []Profile `yaml:"profiles"`
}

// Store loads and persists BridgeConfig through the host's KVStore
// capability, with an optional one-time YAML bootstrap and hot-reload.
type Store struct {
	kv     capability.KVStore
	fs     Filesystem
	watch  capability.FileWatcher
	path   string
	logger zerolog.Logger
}

// Filesystem is the narrow file-reading surface the bootstrap file is
// read through; an osfs.New(".")-backed implementation is wired by the
// CLI, and tests use an in-memory one.
type Filesystem interface {
	Open(filename string) (io.ReadCloser, error)
}

// New builds a Store. fs and watch may be nil: a nil fs skips
// bootstrap entirely, and a nil watch disables hot-reload.
func New(kv capability.KVStore, fs Filesystem, watch capability.FileWatcher, bootstrapPath string, logger zerolog.Logger) *Store {
	return &Store{
		kv:     kv,
		fs:     fs,
		watch:  watch,
		path:   bootstrapPath,
		logger: logger.With().Str("component", "bridgeconfig").Logger(),
	}
}

// Get loads the persisted config, bootstrapping from the local YAML
// file on first run if no record exists yet.
func (s *Store) Get(ctx context.Context) (BridgeConfig, error) {
	data, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return BridgeConfig{}, fmt.Errorf("load bridge config: %w", err)
	}
	if ok && len(data) > 0 {
		var cfg BridgeConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return BridgeConfig{}, fmt.Errorf("decode bridge config: %w", err)
		}
		return cfg, nil
	}

	boot, found, err := s.readBootstrap()
	if err != nil {
		s.logger.Warn().Err(err).Msg("bootstrap file present but unreadable, starting from zero-profile default")
		return BridgeConfig{}, nil
	}
	if !found {
		return BridgeConfig{}, nil
	}
	if err := s.Set(ctx, boot); err != nil {
		return BridgeConfig{}, fmt.Errorf("persist bootstrapped config: %w", err)
	}
	return boot, nil
}

// Set persists cfg wholesale.
func (s *Store) Set(ctx context.Context, cfg BridgeConfig) error {
	cfg.Profiles = append([]Profile(nil), cfg.Profiles...)
	clampPriorities(cfg.Profiles)
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode bridge config: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("save bridge config: %w", err)
	}
	return nil
}

// Resolve implements the active-profile resolution rule: the enabled profile
// matching ActiveClientID wins; else the highest-priority enabled
// profile; else the first profile (which may itself be disabled,
// signaled through Profile.Enabled to the caller).
func Resolve(cfg BridgeConfig) (Profile, bool) {
	if len(cfg.Profiles) == 0 {
		return Profile{}, false
	}
	if cfg.ActiveClientID != "" {
		for _, p := range cfg.Profiles {
			if p.ClientID == cfg.ActiveClientID && p.Enabled {
				return p, true
			}
		}
	}

	best := -1
	bestPriority := 0
	for i, p := range cfg.Profiles {
		if !p.Enabled {
			continue
		}
		if best == -1 || p.Priority > bestPriority {
			best, bestPriority = i, p.Priority
		}
	}
	if best != -1 {
		return cfg.Profiles[best], true
	}
	return cfg.Profiles[0], true
}

// readBootstrap reads and parses the local YAML seed file, if present.
// A missing file is not an error; found is false in that case.
func (s *Store) readBootstrap() (BridgeConfig, bool, error) {
	if s.fs == nil || s.path == "" {
		return BridgeConfig{}, false, nil
	}
	f, err := s.fs.Open(s.path)
	if err != nil {
		return BridgeConfig{}, false, nil //nolint:nilerr // absence is not an error
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return BridgeConfig{}, true, fmt.Errorf("read bootstrap file: %w", err)
	}
	var boot bootstrapFile
	if err := yaml.Unmarshal(raw, &boot); err != nil {
		return BridgeConfig{}, true, fmt.Errorf("parse bootstrap file: %w", err)
	}
	clampPriorities(boot.Profiles)
	return BridgeConfig{ActiveClientID: boot.ActiveClientID, Profiles: boot.Profiles}, true, nil
}

// WatchForReload arms hot-reload: on every write to the bootstrap
// file, newly-appeared clientIds are merged into the persisted config.
// Existing profiles (including operator edits) are never touched.
func (s *Store) WatchForReload(ctx context.Context) error {
	if s.watch == nil || s.path == "" {
		return nil
	}
	ch, err := s.watch.Watch(s.path)
	if err != nil {
		return fmt.Errorf("watch bootstrap file: %w", err)
	}
	if ch == nil {
		return nil
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				if err := s.mergeNewProfiles(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("bootstrap reload failed")
				}
			}
		}
	}()
	return nil
}

func (s *Store) mergeNewProfiles(ctx context.Context) error {
	boot, found, err := s.readBootstrap()
	if err != nil || !found {
		return err
	}

	cur, err := s.currentOrEmpty(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(cur.Profiles))
	for _, p := range cur.Profiles {
		known[p.ClientID] = true
	}

	added := 0
	for _, p := range boot.Profiles {
		if known[p.ClientID] {
			continue
		}
		cur.Profiles = append(cur.Profiles, p)
		added++
	}
	if added == 0 {
		return nil
	}
	s.logger.Info().Int("added", added).Msg("merged new profiles from bootstrap reload")
	return s.Set(ctx, cur)
}

func (s *Store) currentOrEmpty(ctx context.Context) (BridgeConfig, error) {
	data, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return BridgeConfig{}, fmt.Errorf("load bridge config: %w", err)
	}
	if !ok || len(data) == 0 {
		return BridgeConfig{}, nil
	}
	var cfg BridgeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return BridgeConfig{}, fmt.Errorf("decode bridge config: %w", err)
	}
	return cfg, nil
}

func clampPriorities(profiles []Profile) {
	for i := range profiles {
		if profiles[i].Priority > 1000 {
			profiles[i].Priority = 1000
		}
		if profiles[i].Priority < -1000 {
			profiles[i].Priority = -1000
		}
	}
}
