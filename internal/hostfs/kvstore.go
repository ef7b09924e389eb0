package hostfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmbridge/bmbridge/internal/capability"
)

// KVStore is a capability.KVStore backed by one file per key under a
// data directory. Writes go to a temp file and are renamed into place
// so a crash mid-write never leaves a truncated record behind.
type KVStore struct {
	mu  sync.Mutex
	dir string
}

// NewKVStore builds a KVStore rooted at dir, creating it if absent.
func NewKVStore(dir string) (*KVStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create kv store directory: %w", err)
	}
	return &KVStore{dir: dir}, nil
}

// keyFile maps an opaque key to a filesystem-safe filename: callers
// only ever use a handful of fixed, non-adversarial keys, so a content
// hash keeps this simple without worrying about path traversal.
func (s *KVStore) keyFile(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:8])+".json")
}

func (s *KVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.keyFile(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

func (s *KVStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyFile(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s into place: %w", key, err)
	}
	return nil
}

var _ capability.KVStore = (*KVStore)(nil)
