package index

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bmbridge/bmbridge/internal/state"
)

func newIdx() *state.Index {
	return &state.Index{
		Folders:   map[string]string{},
		Bookmarks: map[string]string{},
		IDToKey:   map[string]string{},
	}
}

func TestDeriveCreateKey_NoteParent(t *testing.T) {
	idx := newIdx()
	idx.Folders["note:Projects/Alpha.md"] = "201"

	key := DeriveCreateKey(idx, "999", ParentInfo{Key: "note:Projects/Alpha.md"}, 0)
	assert.Equal(t, "Projects/Alpha.md|0", key)
}

func TestDeriveCreateKey_FolderParent(t *testing.T) {
	idx := newIdx()
	key := DeriveCreateKey(idx, "999", ParentInfo{Key: "folder:Work"}, 3)
	assert.Equal(t, "folder:Work", key)
}

func TestDeriveCreateKey_UnmanagedParentWithTitle(t *testing.T) {
	idx := newIdx()
	key := DeriveCreateKey(idx, "999", ParentInfo{Title: "Personal"}, 0)
	assert.Equal(t, "folder:Personal", key)
}

func TestDeriveCreateKey_FallsBackToBookmarkID(t *testing.T) {
	idx := newIdx()
	key := DeriveCreateKey(idx, "999", ParentInfo{}, 0)
	assert.Equal(t, "bookmark:999", key)
}

func TestDeriveCreateKey_ExistingMappingWins(t *testing.T) {
	idx := newIdx()
	idx.IDToKey["999"] = "folder:Already"
	key := DeriveCreateKey(idx, "999", ParentInfo{Title: "Other"}, 0)
	assert.Equal(t, "folder:Already", key)
}

func TestRecordMapping_AndIsManaged(t *testing.T) {
	idx := newIdx()
	RecordMapping(idx, "201", "note:Projects/Alpha.md")
	RecordMapping(idx, "55", "bookmark:55")

	assert.True(t, IsManagedFolder(idx, "201"))
	assert.False(t, IsManagedFolder(idx, "55"))
	assert.True(t, IsManagedBookmark(idx, "55"))
	assert.False(t, IsManagedBookmark(idx, "201"))

	key, ok := KeyForID(idx, "201")
	assert.True(t, ok)
	assert.Equal(t, "note:Projects/Alpha.md", key)
}

func TestFolderKeyForID_RestrictsToFolderNamespace(t *testing.T) {
	idx := newIdx()
	RecordMapping(idx, "0", state.RootKey)
	RecordMapping(idx, "10", "folder:Work")
	RecordMapping(idx, "55", "bookmark:55")

	key, ok := FolderKeyForID(idx, "0")
	assert.True(t, ok)
	assert.Equal(t, state.RootKey, key)

	key, ok = FolderKeyForID(idx, "10")
	assert.True(t, ok)
	assert.Equal(t, "folder:Work", key)

	_, ok = FolderKeyForID(idx, "55")
	assert.False(t, ok)

	key, ok = KeyForID(idx, "55")
	assert.True(t, ok)
	assert.Equal(t, "bookmark:55", key)
}

func TestKeyForID_RepairsInverseMapOnMiss(t *testing.T) {
	idx := newIdx()
	idx.Bookmarks["bookmark:7"] = "7" // idToKey intentionally stale/missing

	key, ok := KeyForID(idx, "7")
	assert.True(t, ok)
	assert.Equal(t, "bookmark:7", key)
	assert.Equal(t, "bookmark:7", idx.IDToKey["7"])
}
