package queue

import (
	"time"

	"github.com/bmbridge/bmbridge/internal/dedupe"
	"github.com/bmbridge/bmbridge/internal/state"
)

// EventLog receives the operator-visible disposition of every queue
// outcome; implementations typically fan this out to the debug timeline
// and to metrics.
type EventLog interface {
	CaptureSkip(eventID, reason string)
	Quarantine(eventID, bookmarkID string, retryCount int, reason string)
	Warn(summary string)
}

// Enqueue appends evt to the queue after deduping against its eventId
// in the synthetic "outbound" dedupe bucket. It returns
// true if the event was enqueued, false if it was dropped as a
// duplicate (logged to log as capture_skip).
func Enqueue(st *state.State, evt state.ReverseEvent, now time.Time, log EventLog) bool {
	if !dedupe.RecordAndCheck(&st.Dedupe, dedupe.OutboundClientID, evt.EventID, now) {
		if log != nil {
			log.CaptureSkip(evt.EventID, "duplicate_outbound_event_id")
		}
		return false
	}

	st.Queue = append(st.Queue, state.QueueItem{
		Event:      evt,
		RetryCount: 0,
		EnqueuedAt: state.NowISO(now),
	})
	return true
}

// MarkFailures implements the retry/quarantine rule: for every
// item whose eventId is in failed, increment retryCount; at
// MaxRetries, drop and log quarantine; otherwise retain. Items not in
// failed are preserved unchanged. It never leaves a retryCount >=
// MaxRetries item in the returned queue.
func MarkFailures(items []state.QueueItem, failed map[string]string, log EventLog) []state.QueueItem {
	out := make([]state.QueueItem, 0, len(items))
	for _, it := range items {
		reason, isFailed := failed[it.Event.EventID]
		if !isFailed {
			out = append(out, it)
			continue
		}
		it.RetryCount++
		if it.RetryCount >= MaxRetries {
			if log != nil {
				log.Quarantine(it.Event.EventID, it.Event.BookmarkID, it.RetryCount, reason)
			}
			continue
		}
		out = append(out, it)
	}
	return out
}

// SweepSuperseded implements the superseded-duplicates sweep
// rule: after a successful send round, any queue item that was NOT
// part of the coalesced view but shares a bookmarkId with one that was
// gets dropped, since the coalesced event's eventual ack subsumes it.
func SweepSuperseded(items []state.QueueItem, coalesced []state.QueueItem) []state.QueueItem {
	coalescedBookmarkIDs := make(map[string]bool, len(coalesced))
	coalescedIDs := coalescedEventIDs(coalesced)
	for _, it := range coalesced {
		if it.Event.BookmarkID != "" {
			coalescedBookmarkIDs[it.Event.BookmarkID] = true
		}
	}

	out := make([]state.QueueItem, 0, len(items))
	for _, it := range items {
		if coalescedIDs[it.Event.EventID] {
			out = append(out, it)
			continue
		}
		if it.Event.BookmarkID != "" && coalescedBookmarkIDs[it.Event.BookmarkID] {
			continue // superseded by a coalesced predecessor's eventual ack
		}
		out = append(out, it)
	}
	return out
}
