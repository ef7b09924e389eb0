package apply

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmbridge/bmbridge/internal/capability"
	"github.com/bmbridge/bmbridge/internal/index"
	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/pkg/wire"
	"github.com/bmbridge/bmbridge/testutil"
)

func newIdx() *state.Index {
	return &state.Index{Folders: map[string]string{}, Bookmarks: map[string]string{}, IDToKey: map[string]string{}}
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestApply_BookmarkCreated_RecordsMapping(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	a := NewApplier(store)
	idx := newIdx()

	env := wire.Envelope{
		Op:      "bookmark_created",
		Target:  "bookmark:new",
		Payload: payload(t, wire.ActionPayload{ParentID: "0", Title: "Example", URL: "https://example.com"}),
	}

	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckApplied, res.Status)
	assert.Equal(t, "bookmark:new", res.ResolvedKey)
	assert.NotEmpty(t, idx.IDToKey)
}

func TestApply_BookmarkCreated_MissingParentIsRejected(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	a := NewApplier(store)
	idx := newIdx()

	env := wire.Envelope{
		Op:      "bookmark_created",
		Target:  "bookmark:new",
		Payload: payload(t, wire.ActionPayload{Title: "Example"}),
	}

	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckRejected, res.Status)
	assert.Equal(t, "missing_parentId", res.Reason)
}

func TestApply_BookmarkUpdated_ResolvesByTargetKey(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	node, err := store.Create(context.Background(), capability.CreateInput{ParentID: "0", Title: "Old", URL: "https://old.example"})
	require.NoError(t, err)

	idx := newIdx()
	idx.Bookmarks["bookmark:7"] = node.ID
	idx.IDToKey[node.ID] = "bookmark:7"

	a := NewApplier(store)
	env := wire.Envelope{
		Op:      "bookmark_updated",
		Target:  "bookmark:7",
		Payload: payload(t, wire.ActionPayload{Title: "New"}),
	}
	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckApplied, res.Status)

	got, err := store.Get(context.Background(), node.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
}

func TestApply_BookmarkUpdated_UnresolvableTargetIsRejected(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	a := NewApplier(store)
	idx := newIdx()

	env := wire.Envelope{Op: "bookmark_updated", Target: "bookmark:missing", Payload: payload(t, wire.ActionPayload{Title: "New"})}
	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckRejected, res.Status)
	assert.Equal(t, "missing_bookmarkId", res.Reason)
}

func TestApply_BookmarkDeleted_RemovesNode(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	node, err := store.Create(context.Background(), capability.CreateInput{ParentID: "0", Title: "Gone", URL: "https://gone.example"})
	require.NoError(t, err)

	idx := newIdx()
	idx.Bookmarks["bookmark:9"] = node.ID
	idx.IDToKey[node.ID] = "bookmark:9"

	a := NewApplier(store)
	env := wire.Envelope{Op: "bookmark_deleted", Target: "bookmark:9"}
	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckApplied, res.Status)

	_, err = store.Get(context.Background(), node.ID)
	assert.Error(t, err)
}

func TestApply_BookmarkMoved_MissingParentIsRejected(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	node, err := store.Create(context.Background(), capability.CreateInput{ParentID: "0", Title: "Movable", URL: "https://movable.example"})
	require.NoError(t, err)

	idx := newIdx()
	idx.Bookmarks["bookmark:m"] = node.ID
	idx.IDToKey[node.ID] = "bookmark:m"

	a := NewApplier(store)
	env := wire.Envelope{Op: "bookmark_moved", Target: "bookmark:m", Payload: payload(t, wire.ActionPayload{})}
	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckRejected, res.Status)
}

func TestApply_UnknownOpIsRejected(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	a := NewApplier(store)
	idx := newIdx()

	env := wire.Envelope{Op: "something_else", Target: "x"}
	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckRejected, res.Status)
	assert.Contains(t, res.Reason, "unsupported_action")
}

func TestApply_StoreFailureIsSkippedAmbiguous(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	store.Errs["0"] = assertError{}
	a := NewApplier(store)
	idx := newIdx()

	env := wire.Envelope{
		Op:      "bookmark_created",
		Target:  "bookmark:new",
		Payload: payload(t, wire.ActionPayload{ParentID: "0", Title: "X"}),
	}
	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckSkipped, res.Status)
}

func TestApply_Snapshot_CreatesUnmappedNodes(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	a := NewApplier(store)
	idx := newIdx()
	index.RecordMapping(idx, capability.RootID, state.RootKey)

	env := wire.Envelope{
		Op: "snapshot",
		Payload: payload(t, wire.SnapshotPayload{Nodes: []wire.SnapshotNode{
			{ManagedKey: "folder:Work", ParentKey: state.RootKey, Title: "Work"},
			{ManagedKey: "Work|0", ParentKey: "folder:Work", Title: "Doc", URL: "https://doc.example"},
		}}),
	}
	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckApplied, res.Status)
	assert.Len(t, idx.IDToKey, 3)
}

func TestApply_Snapshot_MissingParentKeyIsSkippedAmbiguous(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	a := NewApplier(store)
	idx := newIdx()

	env := wire.Envelope{
		Op: "snapshot",
		Payload: payload(t, wire.SnapshotPayload{Nodes: []wire.SnapshotNode{
			{ManagedKey: "folder:Work", Title: "Work"},
		}}),
	}
	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckSkipped, res.Status)
}

func TestApply_Snapshot_RootEntryBindsWithoutCreating(t *testing.T) {
	store := testutil.NewFakeBookmarkStore()
	a := NewApplier(store)
	idx := newIdx()

	env := wire.Envelope{
		Op: "snapshot",
		Payload: payload(t, wire.SnapshotPayload{Nodes: []wire.SnapshotNode{
			{ManagedKey: state.RootKey},
			{ManagedKey: "folder:Work", ParentKey: state.RootKey, Title: "Work"},
		}}),
	}
	res := a.Apply(context.Background(), idx, env)
	assert.Equal(t, wire.AckApplied, res.Status)
	assert.Equal(t, capability.RootID, idx.Folders[state.RootKey])
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
