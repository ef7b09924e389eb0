// Package index implements the managed-node index: the
// mapping between local bookmark/folder ids and bridge-visible managed
// keys, and the deterministic key-derivation rule used on outbound create.
package index

import (
	"fmt"
	"strings"

	"github.com/bmbridge/bmbridge/internal/state"
)

const (
	prefixFolder   = "folder:"
	prefixNote     = "note:"
	prefixBookmark = "bookmark:"
)

// IsManagedFolder reports whether id is present in the folder index,
// first checking the O(1) inverse map and falling back to a linear scan
// of Folders on miss (and repairing the inverse map when it finds one).
func IsManagedFolder(idx *state.Index, id string) bool {
	key, ok := KeyForID(idx, id)
	if !ok {
		return false
	}
	return idx.Folders[key] == id
}

// IsManagedBookmark reports whether id is present in the bookmark index,
// with the same O(1)-then-repair-on-miss behavior as IsManagedFolder.
func IsManagedBookmark(idx *state.Index, id string) bool {
	key, ok := KeyForID(idx, id)
	if !ok {
		return false
	}
	return idx.Bookmarks[key] == id
}

// KeyForID returns the managed key for id, if any, preferring the
// inverse map and falling back to a scan of both forward maps.
func KeyForID(idx *state.Index, id string) (string, bool) {
	if key, ok := idx.IDToKey[id]; ok {
		return key, true
	}
	for k, v := range idx.Folders {
		if v == id {
			idx.IDToKey[id] = k
			return k, true
		}
	}
	for k, v := range idx.Bookmarks {
		if v == id {
			idx.IDToKey[id] = k
			return k, true
		}
	}
	return "", false
}

// FolderKeyForID is KeyForID restricted to the folder namespace plus
// the reserved root entry.
func FolderKeyForID(idx *state.Index, id string) (string, bool) {
	key, ok := KeyForID(idx, id)
	if !ok {
		return "", false
	}
	if key == state.RootKey || strings.HasPrefix(key, prefixFolder) || strings.HasPrefix(key, prefixNote) {
		return key, true
	}
	return "", false
}

// RecordMapping records id -> key in both the forward namespace map
// (inferred from key's prefix) and the inverse map. It is the only
// function here that adds forward mappings; KeyForID only refills
// missing inverse-map entries.
func RecordMapping(idx *state.Index, id, key string) {
	switch {
	case key == state.RootKey, strings.HasPrefix(key, prefixFolder), strings.HasPrefix(key, prefixNote):
		idx.Folders[key] = id
	default:
		idx.Bookmarks[key] = id
	}
	idx.IDToKey[id] = key
}

// ParentInfo is the subset of the parent node's state DeriveCreateKey
// needs: its own managed key (if any) and its title.
type ParentInfo struct {
	Key   string // empty if the parent is unmanaged
	Title string
}

// DeriveCreateKey implements the deterministic key-derivation rule from
// a newly-created bookmark or folder. id is the node's own
// local id; siblingIndex is its position among its new siblings.
func DeriveCreateKey(idx *state.Index, id string, parent ParentInfo, siblingIndex int) string {
	if key, ok := idx.IDToKey[id]; ok {
		return key
	}

	switch {
	case strings.HasPrefix(parent.Key, prefixNote):
		path := strings.TrimPrefix(parent.Key, prefixNote)
		return fmt.Sprintf("%s|%d", path, siblingIndex)
	case strings.HasPrefix(parent.Key, prefixFolder):
		return parent.Key
	case parent.Title != "":
		return prefixFolder + parent.Title
	default:
		return prefixBookmark + id
	}
}
