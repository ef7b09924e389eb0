// Package debugtimeline implements the debug timeline: a
// bounded ring buffer of the last 200 operator-visible events, with
// every summary scrubbed of tokens and URL paths before it is stored.
package debugtimeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/bmbridge/bmbridge/internal/redact"
)

// Capacity is the maximum number of retained events.
const Capacity = 200

// Level is the severity of a recorded event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a single entry in the timeline.
type Event struct {
	Seq       uint64    `json:"seq"`
	Level     Level     `json:"level"`
	Component string    `json:"component"`
	Summary   string    `json:"summary"`
	At        time.Time `json:"at"`
}

// Timeline is a fixed-capacity ring buffer of Events, safe for
// concurrent use.
type Timeline struct {
	mu      sync.Mutex
	data    []Event
	head    int // next write position
	count   int // number of live entries
	nextSeq uint64
	secrets []string // known raw token values, scrubbed from every summary
	now     func() time.Time
}

// New builds an empty Timeline. secrets are raw token values that must
// never appear verbatim in a recorded summary.
func New(secrets ...string) *Timeline {
	return &Timeline{
		data:    make([]Event, Capacity),
		secrets: secrets,
		now:     time.Now,
	}
}

// Record formats a summary, scrubs it, assigns the next sequence
// number, and appends it, evicting the oldest entry once at capacity.
func (t *Timeline) Record(level Level, component, format string, args ...any) {
	summary := redact.Scrub(fmt.Sprintf(format, args...), t.secrets...)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSeq++
	t.data[t.head] = Event{
		Seq:       t.nextSeq,
		Level:     level,
		Component: component,
		Summary:   summary,
		At:        t.now(),
	}
	t.head = (t.head + 1) % len(t.data)
	if t.count < len(t.data) {
		t.count++
	}
}

// Snapshot returns all retained events, oldest first.
func (t *Timeline) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, t.count)
	for i := 0; i < t.count; i++ {
		idx := (t.head - t.count + i + len(t.data)) % len(t.data)
		out[i] = t.data[idx]
	}
	return out
}

// Clear discards every retained event without resetting the sequence
// counter, so seq numbers stay monotonic across a clear.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.head = 0
	t.count = 0
}

// Info records an info-level event.
func (t *Timeline) Info(component, format string, args ...any) {
	t.Record(LevelInfo, component, format, args...)
}

// Warn records a warn-level event.
func (t *Timeline) Warn(summary string) {
	t.Record(LevelWarn, "", "%s", summary)
}

// CaptureSkip satisfies queue.EventLog: a capture event was skipped.
func (t *Timeline) CaptureSkip(eventID, reason string) {
	t.Record(LevelInfo, "capture", "skipped event %s: %s", eventID, reason)
}

// Quarantine satisfies queue.EventLog: a queue item was dropped after
// exhausting retries.
func (t *Timeline) Quarantine(eventID, bookmarkID string, retryCount int, reason string) {
	t.Record(LevelError, "queue", "quarantined event %s for bookmark %s after %d retries: %s", eventID, bookmarkID, retryCount, reason)
}
