// Package ack implements the ack reconciler: draining the
// reverse queue in response to a BatchAckResponse, attributing resolved
// managed keys back to the index, and retaining only the statuses that
// warrant a retry.
package ack

import (
	"github.com/bmbridge/bmbridge/internal/index"
	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/pkg/wire"
)

// Log receives dispositions this reconciler cannot resolve, mirroring
// a warn-on-unknown-status pattern.
type Log interface {
	Warn(summary string)
}

// Reconcile applies resp against st.Queue and st.Index in place,
// following the per-status disposition table. It
// snapshots eventId -> queue item before any mutation so a resolvedKey
// can be attributed to the right bookmarkId even after the item is
// removed from the queue.
func Reconcile(st *state.State, resp wire.BatchAckResponse, log Log) {
	snapshot := make(map[string]state.QueueItem, len(st.Queue))
	for _, it := range st.Queue {
		snapshot[it.Event.EventID] = it
	}

	resolved := make(map[string]string, len(resp.Results))
	for _, r := range resp.Results {
		switch r.Status {
		case "applied":
			if r.ResolvedKey != "" {
				if it, ok := snapshot[r.EventID]; ok && it.Event.BookmarkID != "" {
					index.RecordMapping(&st.Index, it.Event.BookmarkID, r.ResolvedKey)
				}
			}
			resolved[r.EventID] = "remove"
		case "duplicate", "skipped_ambiguous", "skipped_unmanaged", "rejected_invalid":
			resolved[r.EventID] = "remove"
		default:
			resolved[r.EventID] = "keep"
			if log != nil {
				log.Warn("ack reconcile: unknown status " + r.Status + " for event " + r.EventID)
			}
		}
	}

	out := make([]state.QueueItem, 0, len(st.Queue))
	for _, it := range st.Queue {
		if resolved[it.Event.EventID] == "remove" {
			continue
		}
		out = append(out, it)
	}
	st.Queue = out
}
