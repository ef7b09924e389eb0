// Package wire defines the JSON frames exchanged with the note-bridge
// over the WebSocket (and, for the legacy fallback, over HTTP).
package wire

import "encoding/json"

// Type identifies the kind of a wire envelope.
type Type string

const (
	TypeHandshake    Type = "handshake"
	TypeHandshakeAck Type = "handshake_ack"
	TypeAction       Type = "action"
	TypeAck          Type = "ack"
	TypeError        Type = "error"
	TypeHeartbeatPing Type = "heartbeat_ping"
	TypeHeartbeatPong Type = "heartbeat_pong"
)

// AckStatus is the current-vocabulary ack result.
type AckStatus string

const (
	AckReceived AckStatus = "received"
	AckApplied  AckStatus = "applied"
	AckDuplicate AckStatus = "duplicate"
	AckSkipped  AckStatus = "skipped"
	AckRejected AckStatus = "rejected"
)

// LegacyAckStatus is the legacy-vocabulary ack result, carried alongside
// AckStatus for bridges that have not migrated.
type LegacyAckStatus string

const (
	LegacyApplied          LegacyAckStatus = "applied"
	LegacyDuplicate        LegacyAckStatus = "duplicate"
	LegacySkippedAmbiguous LegacyAckStatus = "skipped_ambiguous"
	LegacySkippedUnmanaged LegacyAckStatus = "skipped_unmanaged"
	LegacyRejectedInvalid  LegacyAckStatus = "rejected_invalid"
)

// Envelope is the common shape of every wire frame. Type-specific
// fields are carried alongside; which ones are required depends on
// Type, and is enforced by internal/envelope, not by this struct.
type Envelope struct {
	Type           Type            `json:"type"`
	EventID        string          `json:"eventId"`
	ClientID       string          `json:"clientId"`
	OccurredAt     string          `json:"occurredAt"`
	SchemaVersion  string          `json:"schemaVersion"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	CorrelationID  string          `json:"correlationId,omitempty"`

	// handshake
	SessionID    string   `json:"sessionId,omitempty"`
	Token        string   `json:"token,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`

	// handshake_ack
	Accepted    *bool `json:"accepted,omitempty"`
	HeartbeatMs *int  `json:"heartbeatMs,omitempty"`

	// action
	Op      string          `json:"op,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// ack
	Status       AckStatus       `json:"status,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	ResolvedPath string          `json:"resolvedPath,omitempty"`
	ResolvedKey  string          `json:"resolvedKey,omitempty"`
	LegacyStatus LegacyAckStatus `json:"legacyStatus,omitempty"`

	// error
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Retryable *bool           `json:"retryable,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// ActionPayload is the typed shape of an action envelope's payload for
// the operations this bridge sends and receives.
type ActionPayload struct {
	BookmarkID string `json:"bookmarkId,omitempty"`
	ManagedKey string `json:"managedKey,omitempty"`
	ParentID   string `json:"parentId,omitempty"`
	MoveIndex  *int   `json:"moveIndex,omitempty"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
	Index      *int   `json:"index,omitempty"`
}

// SnapshotNode is one desired node in a `snapshot` action's wholesale
// tree payload.
type SnapshotNode struct {
	ManagedKey string `json:"managedKey"`
	ParentKey  string `json:"parentKey,omitempty"`
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	Index      int    `json:"index"`
}

// SnapshotPayload is the typed shape of a `snapshot` action's payload:
// the bridge's desired view of the entire managed tree, re-applied
// wholesale rather than incrementally.
type SnapshotPayload struct {
	Nodes []SnapshotNode `json:"nodes"`
}

// ReverseSyncRequest is the body of the legacy HTTP fallback POST.
type ReverseSyncRequest struct {
	BatchID string          `json:"batchId"`
	Events  []ReverseEvent  `json:"events"`
	SentAt  string          `json:"sentAt"`
}

// ReverseEvent is the wire shape of a single queued reverse-sync event.
type ReverseEvent struct {
	SchemaVersion string `json:"schemaVersion"`
	BatchID       string `json:"batchId"`
	EventID       string `json:"eventId"`
	Type          string `json:"type"`
	BookmarkID    string `json:"bookmarkId"`
	ManagedKey    string `json:"managedKey"`
	Title         string `json:"title,omitempty"`
	URL           string `json:"url,omitempty"`
	ParentID      string `json:"parentId,omitempty"`
	MoveIndex     *int   `json:"moveIndex,omitempty"`
	OccurredAt    string `json:"occurredAt"`
}

// AckResult is a single per-event outcome inside a BatchAckResponse.
type AckResult struct {
	EventID      string `json:"eventId"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	ResolvedKey  string `json:"resolvedKey,omitempty"`
	ResolvedPath string `json:"resolvedPath,omitempty"`
}

// BatchAckResponse is the reconciler's input, whether it arrived over
// the WebSocket (synthesized from a single `ack` envelope) or over the
// legacy HTTP fallback (the literal response body).
type BatchAckResponse struct {
	BatchID string      `json:"batchId"`
	Results []AckResult `json:"results"`
}
