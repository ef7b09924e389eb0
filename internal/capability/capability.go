// Package capability declares the host-environment interfaces the sync
// core is built against: the bookmark store, the key/value persistence
// layer, timers and alarms, and the optional status-indication surface.
// Every implementation lives outside this module; the core only ever
// depends on these interfaces so it can be driven by fakes in tests.
package capability

import (
	"context"
	"time"
)

// BookmarkNode mirrors a single node (bookmark or folder) in the local
// bookmark tree as the host environment exposes it.
type BookmarkNode struct {
	ID       string
	ParentID string
	Title    string
	URL      string // empty for folders
	Index    int    // position among siblings
}

// CreateInput describes a new node to create under a parent.
type CreateInput struct {
	ParentID string
	Title    string
	URL      string // empty creates a folder
}

// UpdateInput describes a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Title *string
	URL   *string
}

// MoveInput describes a relocation of a node to a new parent/position.
type MoveInput struct {
	ParentID string
	Index    *int // nil leaves position unspecified (append)
}

// RootID is the id every BookmarkStore implementation uses for the
// host's implicit root folder. It is a fixed convention rather than
// something discovered at runtime, so callers that need to address the
// root (seeding the managed-node index, binding a snapshot's root
// entry) can do so without a round trip through the store.
const RootID = "0"

// BookmarkStore is the local bookmark tree, observed and mutated through
// this narrow surface. It is an external collaborator: this module never
// implements it, only consumes it.
type BookmarkStore interface {
	Get(ctx context.Context, id string) (BookmarkNode, error)
	GetChildren(ctx context.Context, parentID string) ([]BookmarkNode, error)
	GetTree(ctx context.Context) ([]BookmarkNode, error)
	Create(ctx context.Context, in CreateInput) (BookmarkNode, error)
	Update(ctx context.Context, id string, in UpdateInput) error
	Move(ctx context.Context, id string, in MoveInput) error
	Remove(ctx context.Context, id string) error
	RemoveTree(ctx context.Context, id string) error
}

// BookmarkEventKind identifies the kind of a local bookmark mutation.
type BookmarkEventKind string

const (
	EventCreated      BookmarkEventKind = "created"
	EventChanged      BookmarkEventKind = "changed"
	EventRemoved      BookmarkEventKind = "removed"
	EventMoved        BookmarkEventKind = "moved"
	EventImportBegan  BookmarkEventKind = "importBegan"
	EventImportEnded  BookmarkEventKind = "importEnded"
)

// BookmarkEvent is a single observed local mutation, as delivered by the
// host environment's bookmark-store event channel.
type BookmarkEvent struct {
	Kind        BookmarkEventKind
	ID          string
	Node        BookmarkNode // populated for created/changed/moved
	OldParentID string       // populated for moved
	OldIndex    int          // populated for moved
}

// BookmarkEvents is the subscription surface for local bookmark mutations.
// Subscribe returns a channel that is closed when ctx is done.
type BookmarkEvents interface {
	Subscribe(ctx context.Context) (<-chan BookmarkEvent, error)
}

// KVStore is the host's async string-keyed persistence capability. It
// stores opaque JSON records; this module never implements the storage
// engine, only reads and writes through this interface.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CancelFunc stops a scheduled timer or alarm.
type CancelFunc func()

// Timers is the host's scheduling capability: fire-once and
// repeat-every primitives, as described by the bridge's alarm model.
type Timers interface {
	After(d time.Duration, fn func()) CancelFunc
	Repeating(d time.Duration, fn func()) CancelFunc
}

// StatusSurface is the optional local UI affordance (badge text / title)
// the bridge can use to indicate sync status. A no-op implementation is
// always valid.
type StatusSurface interface {
	SetBadgeText(text string)
	SetTitle(title string)
}

// Notifier raises a desktop notification. A no-op implementation is
// always valid; only the CLI wires a real one.
type Notifier interface {
	Notify(title, body string) error
}

// FileWatcher observes a single local file for writes. A nil channel
// return value is a valid "never reloads" implementation.
type FileWatcher interface {
	Watch(path string) (<-chan struct{}, error)
}
