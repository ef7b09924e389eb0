package ack

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/pkg/wire"
)

type fakeLog struct{ warnings []string }

func (f *fakeLog) Warn(summary string) { f.warnings = append(f.warnings, summary) }

func queueWith(bookmarkID, eventID string) state.QueueItem {
	return state.QueueItem{Event: state.ReverseEvent{EventID: eventID, BookmarkID: bookmarkID}}
}

func newIdx() state.Index {
	return state.Index{Folders: map[string]string{}, Bookmarks: map[string]string{}, IDToKey: map[string]string{}}
}

func TestReconcile_AppliedRecordsMappingAndRemoves(t *testing.T) {
	st := &state.State{Index: newIdx(), Queue: []state.QueueItem{queueWith("b1", "e1")}}

	Reconcile(st, wire.BatchAckResponse{
		Results: []wire.AckResult{{EventID: "e1", Status: "applied", ResolvedKey: "bookmark:b1"}},
	}, nil)

	assert.Empty(t, st.Queue)
	assert.Equal(t, "b1", st.Index.Bookmarks["bookmark:b1"])
}

func TestReconcile_AppliedWithoutResolvedKeySkipsMapping(t *testing.T) {
	st := &state.State{Index: newIdx(), Queue: []state.QueueItem{queueWith("b1", "e1")}}

	Reconcile(st, wire.BatchAckResponse{
		Results: []wire.AckResult{{EventID: "e1", Status: "applied"}},
	}, nil)

	assert.Empty(t, st.Queue)
	assert.Empty(t, st.Index.Bookmarks)
}

func TestReconcile_DuplicateRemovesWithoutTouchingIndex(t *testing.T) {
	st := &state.State{Index: newIdx(), Queue: []state.QueueItem{queueWith("b1", "e1")}}

	Reconcile(st, wire.BatchAckResponse{
		Results: []wire.AckResult{{EventID: "e1", Status: "duplicate", ResolvedKey: "bookmark:b1"}},
	}, nil)

	assert.Empty(t, st.Queue)
	assert.Empty(t, st.Index.Bookmarks, "duplicate must not update the key map even if resolvedKey is present")
}

func TestReconcile_TerminalStatusesRemoveWithoutRetry(t *testing.T) {
	for _, status := range []string{"skipped_ambiguous", "skipped_unmanaged", "rejected_invalid"} {
		st := &state.State{Index: newIdx(), Queue: []state.QueueItem{queueWith("b1", "e1")}}
		Reconcile(st, wire.BatchAckResponse{
			Results: []wire.AckResult{{EventID: "e1", Status: status}},
		}, nil)
		assert.Empty(t, st.Queue, "status %s should be terminal", status)
	}
}

func TestReconcile_UnknownStatusKeepsAndWarns(t *testing.T) {
	st := &state.State{Index: newIdx(), Queue: []state.QueueItem{queueWith("b1", "e1")}}
	log := &fakeLog{}

	Reconcile(st, wire.BatchAckResponse{
		Results: []wire.AckResult{{EventID: "e1", Status: "something_new"}},
	}, log)

	assert.Len(t, st.Queue, 1)
	assert.Len(t, log.warnings, 1)
}

func TestReconcile_UnmentionedItemsAreRetained(t *testing.T) {
	st := &state.State{Index: newIdx(), Queue: []state.QueueItem{queueWith("b1", "e1"), queueWith("b2", "e2")}}

	Reconcile(st, wire.BatchAckResponse{
		Results: []wire.AckResult{{EventID: "e1", Status: "applied", ResolvedKey: "bookmark:b1"}},
	}, nil)

	assert.Len(t, st.Queue, 1)
	assert.Equal(t, "e2", st.Queue[0].Event.EventID)
}
