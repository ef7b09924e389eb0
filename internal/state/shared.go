package state

import (
	"context"
	"sync"
)

// Shared is the single shared mutable object: the
// durable state record, guarded by one mutex so that, consistent with
// the single-threaded cooperative model this package follows, any
// in-memory mutation has exclusive access between its own suspension
// points. Every component that touches *State goes through View or
// Mutate rather than holding a reference to the record directly.
type Shared struct {
	mu    sync.Mutex
	st    *State
	store *Store
}

// NewShared wraps an already-loaded state record for exclusive access.
func NewShared(st *State, store *Store) *Shared {
	return &Shared{st: st, store: store}
}

// View runs fn with read access to the record under the lock. fn must
// not block on I/O — it is for synchronous reads/derivations only.
func (s *Shared) View(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// Mutate runs fn with exclusive access to the record, then persists the
// whole record if fn returns a nil error. This is the mandatory
// save-after-any-mutation discipline: every successful
// mutator load-modifies-saves atomically.
func (s *Shared) Mutate(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.st); err != nil {
		return err
	}
	return s.store.Save(ctx, s.st)
}
