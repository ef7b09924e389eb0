package hostfs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmbridge/bmbridge/internal/capability"
)

func newTestBookmarkStore(t *testing.T) (*BookmarkStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookmarks.json")
	s, err := NewBookmarkStore(path)
	require.NoError(t, err)
	return s, path
}

func TestBookmarkStore_CreateUnderRoot(t *testing.T) {
	s, _ := newTestBookmarkStore(t)
	ctx := context.Background()

	n, err := s.Create(ctx, capability.CreateInput{ParentID: RootID, Title: "Example", URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, RootID, n.ParentID)
	assert.Equal(t, 0, n.Index)

	kids, err := s.GetChildren(ctx, RootID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, n.ID, kids[0].ID)
}

func TestBookmarkStore_CreateUnknownParentFails(t *testing.T) {
	s, _ := newTestBookmarkStore(t)
	_, err := s.Create(context.Background(), capability.CreateInput{ParentID: "missing", Title: "x"})
	assert.Error(t, err)
}

func TestBookmarkStore_MoveReindexesBothSides(t *testing.T) {
	s, _ := newTestBookmarkStore(t)
	ctx := context.Background()

	folder, err := s.Create(ctx, capability.CreateInput{ParentID: RootID, Title: "Folder"})
	require.NoError(t, err)
	a, err := s.Create(ctx, capability.CreateInput{ParentID: RootID, Title: "A", URL: "https://a.example"})
	require.NoError(t, err)
	b, err := s.Create(ctx, capability.CreateInput{ParentID: RootID, Title: "B", URL: "https://b.example"})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Index)

	require.NoError(t, s.Move(ctx, a.ID, capability.MoveInput{ParentID: folder.ID}))

	rootKids, err := s.GetChildren(ctx, RootID)
	require.NoError(t, err)
	require.Len(t, rootKids, 2)
	assert.Equal(t, 0, rootKids[0].Index)
	assert.Equal(t, 1, rootKids[1].Index)

	folderKids, err := s.GetChildren(ctx, folder.ID)
	require.NoError(t, err)
	require.Len(t, folderKids, 1)
	assert.Equal(t, a.ID, folderKids[0].ID)
	assert.Equal(t, 0, folderKids[0].Index)
}

func TestBookmarkStore_RemoveTreeDeletesDescendants(t *testing.T) {
	s, _ := newTestBookmarkStore(t)
	ctx := context.Background()

	folder, err := s.Create(ctx, capability.CreateInput{ParentID: RootID, Title: "Folder"})
	require.NoError(t, err)
	child, err := s.Create(ctx, capability.CreateInput{ParentID: folder.ID, Title: "Child", URL: "https://child.example"})
	require.NoError(t, err)

	require.NoError(t, s.RemoveTree(ctx, folder.ID))

	_, err = s.Get(ctx, folder.ID)
	assert.Error(t, err)
	_, err = s.Get(ctx, child.ID)
	assert.Error(t, err)
}

func TestBookmarkStore_PersistsAcrossReload(t *testing.T) {
	s, path := newTestBookmarkStore(t)
	ctx := context.Background()

	n, err := s.Create(ctx, capability.CreateInput{ParentID: RootID, Title: "Sticky", URL: "https://sticky.example"})
	require.NoError(t, err)

	reopened, err := NewBookmarkStore(path)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sticky", got.Title)
}

func TestBookmarkStore_ExternalEditSynthesizesImportEvents(t *testing.T) {
	s, path := newTestBookmarkStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.Create(ctx, capability.CreateInput{ParentID: RootID, Title: "Original", URL: "https://original.example"})
	require.NoError(t, err)

	events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	// Simulate an external process (e.g. a browser extension) rewriting
	// the whole file with one new node added.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var flat []persistedNode
	require.NoError(t, json.Unmarshal(data, &flat))
	flat = append(flat, persistedNode{ID: "external-1", ParentID: RootID, Title: "External", URL: "https://external.example", Index: 1})
	out, err := json.MarshalIndent(flat, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0600))

	var kinds []capability.BookmarkEventKind
	for len(kinds) < 3 {
		select {
		case evt := <-events:
			kinds = append(kinds, evt.Kind)
		case <-ctx.Done():
			t.Fatal("timed out waiting for import events")
		}
	}

	assert.Equal(t, capability.EventImportBegan, kinds[0])
	assert.Equal(t, capability.EventImportEnded, kinds[len(kinds)-1])
}
