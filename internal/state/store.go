package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/bmbridge/bmbridge/internal/capability"
)

// StorageKey is the stable KV key the single state record lives under.
const StorageKey = "bmbridge.state.v1"

// compressThreshold is the serialized size above which Save compresses
// the record before handing it to the KV store, trading a small CPU
// cost for less storage pressure on hosts that persist this blob to a
// quota-limited browser-extension KV area.
const compressThreshold = 8 * 1024

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Store loads and persists the single durable state record through the
// host's KVStore capability.
type Store struct {
	kv     capability.KVStore
	logger zerolog.Logger
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// NewStore builds a Store. logger is used only for migration diagnostics.
func NewStore(kv capability.KVStore, logger zerolog.Logger) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Store{kv: kv, logger: logger.With().Str("component", "state.store").Logger(), enc: enc, dec: dec}, nil
}

// Load reads whatever is persisted (including absent, non-object, or
// malformed data) and returns a fully-defaulted, migrated record. It
// never returns an error for malformed input — only for KV transport
// failures.
func (s *Store) Load(ctx context.Context) (*State, error) {
	data, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if !ok || len(data) == 0 {
		return New(), nil
	}

	data, err = s.maybeDecompress(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("state blob failed decompression, treating as absent")
		return New(), nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn().Err(err).Msg("state blob is not valid JSON, migrating from nil")
		raw = nil
	}

	return Migrate(raw), nil
}

// Save persists the whole record atomically: a single KV Set call
// carrying the complete serialized state, never a partial write.
func (s *Store) Save(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if len(data) > compressThreshold {
		data = s.enc.EncodeAll(data, make([]byte, 0, len(data)))
	}
	if err := s.kv.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *Store) maybeDecompress(data []byte) ([]byte, error) {
	if len(data) < 4 || string(data[:4]) != string(zstdMagic) {
		return data, nil
	}
	return s.dec.DecodeAll(data, nil)
}
