// Package queue implements the reverse queue: enqueue,
// coalesce, flush, retry, and quarantine of captured local mutations
// awaiting delivery to the bridge.
package queue

import "github.com/bmbridge/bmbridge/internal/state"

// MaxRetries is the number of transport failures a queue item tolerates
// before it is quarantined (dropped and logged).
const MaxRetries = 3

// Coalesce is the pure, order-preserving per-bookmark last-write-wins
// compaction rule: for every non-empty bookmarkId, only its
// last occurrence survives; items with an empty bookmarkId always
// survive. Coalesce(Coalesce(q)) == Coalesce(q) by construction, since a
// second pass sees each bookmarkId already reduced to one occurrence.
func Coalesce(items []state.QueueItem) []state.QueueItem {
	lastIndex := make(map[string]int, len(items))
	for i, it := range items {
		if it.Event.BookmarkID != "" {
			lastIndex[it.Event.BookmarkID] = i
		}
	}

	out := make([]state.QueueItem, 0, len(items))
	for i, it := range items {
		if it.Event.BookmarkID == "" || lastIndex[it.Event.BookmarkID] == i {
			out = append(out, it)
		}
	}
	return out
}

// coalescedEventIDs returns the eventId set of a coalesced view, for use
// by the superseded-duplicates sweep and by failure attribution.
func coalescedEventIDs(items []state.QueueItem) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it.Event.EventID] = true
	}
	return out
}
