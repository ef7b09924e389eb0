// Package state owns the single durable state record:
// the managed-node index, the reverse queue, the dedupe ledger, the
// suppression state, and the session summary, all persisted atomically
// under one KV key. Every other component mutates fields of *State in
// place; this package only owns the bytes.
package state

import "time"

// RootKey is the reserved managed-folder key for the gateway root.
const RootKey = "__root__"

// SchemaVersion is the current persisted schema version. Migrate never
// decreases this; it only adds fields with documented defaults.
const SchemaVersion = 1

// Index is the managed-node index data.
type Index struct {
	Folders   map[string]string `json:"folders"`   // managed folder key -> local folder id
	Bookmarks map[string]string `json:"bookmarks"` // managed bookmark key -> local bookmark id
	IDToKey   map[string]string `json:"idToKey"`   // local id -> managed key (either namespace)
}

func newIndex() Index {
	return Index{
		Folders:   map[string]string{},
		Bookmarks: map[string]string{},
		IDToKey:   map[string]string{},
	}
}

// ReverseEvent is a single captured local mutation awaiting delivery,
// for persistence.
type ReverseEvent struct {
	SchemaVersion string `json:"schemaVersion"`
	BatchID       string `json:"batchId"`
	EventID       string `json:"eventId"`
	Type          string `json:"type"` // bookmark_created|bookmark_updated|bookmark_deleted|folder_renamed
	BookmarkID    string `json:"bookmarkId"`
	ManagedKey    string `json:"managedKey"`
	Title         string `json:"title,omitempty"`
	URL           string `json:"url,omitempty"`
	ParentID      string `json:"parentId,omitempty"`
	MoveIndex     *int   `json:"moveIndex,omitempty"`
	OccurredAt    string `json:"occurredAt"`
}

// QueueItem wraps a ReverseEvent with retry bookkeeping.
type QueueItem struct {
	Event      ReverseEvent `json:"event"`
	RetryCount int          `json:"retryCount"`
	EnqueuedAt string       `json:"enqueuedAt"` // ISO-8601
}

// Suppression is the apply-epoch/cooldown gate state.
type Suppression struct {
	ApplyEpoch     bool   `json:"applyEpoch"`
	EpochStartedAt string `json:"epochStartedAt,omitempty"` // ISO-8601, empty when not active
	CooldownUntil  int64  `json:"cooldownUntil,omitempty"`  // epoch ms, 0 when not active
}

// Dedupe is the nested clientId -> (key -> epochMs) ledger.
type Dedupe struct {
	Buckets map[string]map[string]int64 `json:"buckets"`
}

func newDedupe() Dedupe {
	return Dedupe{Buckets: map[string]map[string]int64{}}
}

// SessionStatus enumerates the WS session manager's lifecycle states.
type SessionStatus string

const (
	StatusDisconnected SessionStatus = "disconnected"
	StatusConnecting   SessionStatus = "connecting"
	StatusConnected    SessionStatus = "connected"
	StatusReconnecting SessionStatus = "reconnecting"
)

// Session is the persisted session summary.
type Session struct {
	Status          SessionStatus `json:"status"`
	ActiveClientID  string        `json:"activeClientId,omitempty"`
	WSURL           string        `json:"wsUrl,omitempty"`
	ReconnectAttempt int          `json:"reconnectAttempt"`
	HeartbeatMs     int           `json:"heartbeatMs"`
	LastConnectedAt string        `json:"lastConnectedAt,omitempty"`
	LastError       string        `json:"lastError,omitempty"`
	QueuedInbound   int           `json:"queuedInbound"`
	QueuedOutbound  int           `json:"queuedOutbound"`
}

func newSession() Session {
	return Session{
		Status:      StatusDisconnected,
		HeartbeatMs: 25000,
	}
}

// State is the single durable record. Its ImportInProgress field tracks
// the bookmark-store bulk import flag consulted by capture handlers; that
// flag is not part of the wire-visible model
// but is durable so a restart mid-import does not start capturing.
type State struct {
	SchemaVersion    int         `json:"schemaVersion"`
	Index            Index       `json:"index"`
	Queue            []QueueItem `json:"queue"`
	Dedupe           Dedupe      `json:"dedupe"`
	Suppression      Suppression `json:"suppression"`
	Session          Session     `json:"session"`
	ImportInProgress bool        `json:"importInProgress"`
}

// New returns a fully-defaulted, empty state record, as created on
// first run.
func New() *State {
	return &State{
		SchemaVersion: SchemaVersion,
		Index:         newIndex(),
		Queue:         nil,
		Dedupe:        newDedupe(),
		Suppression:   Suppression{},
		Session:       newSession(),
	}
}

// NowISO formats the given time as the ISO-8601 string the state model
// uses for timestamps throughout (enqueuedAt, occurredAt, lastConnectedAt).
func NowISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
