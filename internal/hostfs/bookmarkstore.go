package hostfs

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/bmbridge/bmbridge/internal/capability"
)

// RootID is the reserved id for the implicit root folder.
const RootID = capability.RootID

// BookmarkStore is a capability.BookmarkStore and capability.BookmarkEvents
// backed by a single JSON file: the local bookmark tree a browser
// extension or a human operator edits directly. Every CRUD call both
// mutates the in-memory tree and persists it atomically; an fsnotify
// watch on the same file picks up edits made by anything else and
// diffs them against the last-known snapshot to synthesize events.
type BookmarkStore struct {
	path string

	mu       sync.Mutex
	nodes    map[string]capability.BookmarkNode
	children map[string][]string

	subMu sync.Mutex
	subs  []chan capability.BookmarkEvent
}

type persistedNode struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	Index    int    `json:"index"`
}

// NewBookmarkStore loads (or creates) the bookmark tree at path.
func NewBookmarkStore(path string) (*BookmarkStore, error) {
	s := &BookmarkStore{
		path:     path,
		nodes:    map[string]capability.BookmarkNode{RootID: {ID: RootID, Title: "root"}},
		children: map[string][]string{RootID: {}},
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load bookmark tree: %w", err)
	}
	return s, nil
}

func (s *BookmarkStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var flat []persistedNode
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("unmarshal bookmark tree: %w", err)
	}

	nodes := map[string]capability.BookmarkNode{RootID: {ID: RootID, Title: "root"}}
	children := map[string][]string{RootID: {}}
	for _, pn := range flat {
		nodes[pn.ID] = capability.BookmarkNode{ID: pn.ID, ParentID: pn.ParentID, Title: pn.Title, URL: pn.URL, Index: pn.Index}
		if _, ok := children[pn.ID]; !ok {
			children[pn.ID] = []string{}
		}
	}
	for _, pn := range flat {
		children[pn.ParentID] = append(children[pn.ParentID], pn.ID)
	}
	for parent, kids := range children {
		sort.Slice(kids, func(i, j int) bool { return nodes[kids[i]].Index < nodes[kids[j]].Index })
		children[parent] = kids
	}

	s.nodes = nodes
	s.children = children
	return nil
}

// save persists the tree atomically, writing to a temp file and
// renaming it into place.
func (s *BookmarkStore) save() error {
	flat := make([]persistedNode, 0, len(s.nodes))
	for id, n := range s.nodes {
		if id == RootID {
			continue
		}
		flat = append(flat, persistedNode{ID: n.ID, ParentID: n.ParentID, Title: n.Title, URL: n.URL, Index: n.Index})
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].ID < flat[j].ID })

	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bookmark tree: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create bookmark tree directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write bookmark tree: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *BookmarkStore) emit(evt capability.BookmarkEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *BookmarkStore) Get(_ context.Context, id string) (capability.BookmarkNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return capability.BookmarkNode{}, fmt.Errorf("node %s not found", id)
	}
	return n, nil
}

func (s *BookmarkStore) GetChildren(_ context.Context, parentID string) ([]capability.BookmarkNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capability.BookmarkNode, 0, len(s.children[parentID]))
	for _, id := range s.children[parentID] {
		out = append(out, s.nodes[id])
	}
	return out, nil
}

func (s *BookmarkStore) GetTree(_ context.Context) ([]capability.BookmarkNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capability.BookmarkNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (s *BookmarkStore) Create(_ context.Context, in capability.CreateInput) (capability.BookmarkNode, error) {
	s.mu.Lock()
	if _, ok := s.nodes[in.ParentID]; !ok {
		s.mu.Unlock()
		return capability.BookmarkNode{}, fmt.Errorf("parent %s not found", in.ParentID)
	}
	n := capability.BookmarkNode{
		ID:       uuid.NewString(),
		ParentID: in.ParentID,
		Title:    in.Title,
		URL:      in.URL,
		Index:    len(s.children[in.ParentID]),
	}
	s.nodes[n.ID] = n
	s.children[n.ID] = []string{}
	s.children[in.ParentID] = append(s.children[in.ParentID], n.ID)
	err := s.save()
	s.mu.Unlock()
	if err != nil {
		return capability.BookmarkNode{}, err
	}
	s.emit(capability.BookmarkEvent{Kind: capability.EventCreated, ID: n.ID, Node: n})
	return n, nil
}

func (s *BookmarkStore) Update(_ context.Context, id string, in capability.UpdateInput) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("node %s not found", id)
	}
	if in.Title != nil {
		n.Title = *in.Title
	}
	if in.URL != nil {
		n.URL = *in.URL
	}
	s.nodes[id] = n
	err := s.save()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(capability.BookmarkEvent{Kind: capability.EventChanged, ID: id, Node: n})
	return nil
}

func (s *BookmarkStore) Move(_ context.Context, id string, in capability.MoveInput) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("node %s not found", id)
	}
	oldParent, oldIndex := n.ParentID, n.Index
	s.children[oldParent] = removeID(s.children[oldParent], id)

	n.ParentID = in.ParentID
	dest := s.children[in.ParentID]
	if in.Index == nil || *in.Index >= len(dest) {
		n.Index = len(dest)
		dest = append(dest, id)
	} else {
		idx := *in.Index
		if idx < 0 {
			idx = 0
		}
		n.Index = idx
		dest = append(dest[:idx:idx], append([]string{id}, dest[idx:]...)...)
	}
	s.children[in.ParentID] = dest
	s.nodes[id] = n
	reindex(s.nodes, s.children[oldParent])
	reindex(s.nodes, s.children[in.ParentID])
	err := s.save()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(capability.BookmarkEvent{Kind: capability.EventMoved, ID: id, Node: n, OldParentID: oldParent, OldIndex: oldIndex})
	return nil
}

func (s *BookmarkStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("node %s not found", id)
	}
	s.children[n.ParentID] = removeID(s.children[n.ParentID], id)
	delete(s.nodes, id)
	delete(s.children, id)
	err := s.save()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(capability.BookmarkEvent{Kind: capability.EventRemoved, ID: id})
	return nil
}

func (s *BookmarkStore) RemoveTree(ctx context.Context, id string) error {
	s.mu.Lock()
	var descendants []string
	collectDescendants(s.children, id, &descendants)
	for _, d := range descendants {
		delete(s.nodes, d)
		delete(s.children, d)
	}
	if n, ok := s.nodes[id]; ok {
		s.children[n.ParentID] = removeID(s.children[n.ParentID], id)
	}
	delete(s.nodes, id)
	delete(s.children, id)
	err := s.save()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(capability.BookmarkEvent{Kind: capability.EventRemoved, ID: id})
	return nil
}

// Subscribe satisfies capability.BookmarkEvents: it returns a channel
// fed by every local mutation plus any external edit to the backing
// file (detected via fsnotify and reconciled against the previous
// snapshot as a synthetic importBegan/importEnded pair, since an
// external editor can touch many nodes in one write).
func (s *BookmarkStore) Subscribe(ctx context.Context) (<-chan capability.BookmarkEvent, error) {
	ch := make(chan capability.BookmarkEvent, 64)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		close(ch)
		return ch, err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		close(ch)
		return ch, err
	}

	go func() {
		defer watcher.Close()
		defer close(ch)
		defer s.removeSub(ch)

		base := filepath.Base(s.path)
		var debounce *time.Timer
		var debounceC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base || !event.Has(fsnotify.Write) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.NewTimer(debounceWindow)
				debounceC = debounce.C
			case <-debounceC:
				debounceC = nil
				s.reconcileExternalEdit()
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return ch, nil
}

func (s *BookmarkStore) removeSub(target chan capability.BookmarkEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, ch := range s.subs {
		if ch == target {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// reconcileExternalEdit reloads the file and diffs the new tree
// against the in-memory one, one synthetic event per changed node. A
// whole-file rewrite by another process looks identical to an import,
// so the bridge is told to treat it as one.
func (s *BookmarkStore) reconcileExternalEdit() {
	s.mu.Lock()
	before := snapshotHash(s.nodes)
	old := s.nodes
	if err := s.load(); err != nil {
		s.mu.Unlock()
		return
	}
	after := snapshotHash(s.nodes)
	if before == after {
		s.mu.Unlock()
		return
	}
	changes := diff(old, s.nodes)
	s.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	s.emit(capability.BookmarkEvent{Kind: capability.EventImportBegan})
	for _, evt := range changes {
		s.emit(evt)
	}
	s.emit(capability.BookmarkEvent{Kind: capability.EventImportEnded})
}

func snapshotHash(nodes map[string]capability.BookmarkNode) [32]byte {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var buf []byte
	for _, id := range ids {
		n := nodes[id]
		buf = append(buf, []byte(fmt.Sprintf("%s|%s|%s|%s|%d;", n.ID, n.ParentID, n.Title, n.URL, n.Index))...)
	}
	return sha256.Sum256(buf)
}

func diff(before, after map[string]capability.BookmarkNode) []capability.BookmarkEvent {
	var events []capability.BookmarkEvent
	for id, n := range after {
		old, existed := before[id]
		switch {
		case !existed:
			events = append(events, capability.BookmarkEvent{Kind: capability.EventCreated, ID: id, Node: n})
		case old.ParentID != n.ParentID:
			events = append(events, capability.BookmarkEvent{Kind: capability.EventMoved, ID: id, Node: n, OldParentID: old.ParentID, OldIndex: old.Index})
		case old.Title != n.Title || old.URL != n.URL:
			events = append(events, capability.BookmarkEvent{Kind: capability.EventChanged, ID: id, Node: n})
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			events = append(events, capability.BookmarkEvent{Kind: capability.EventRemoved, ID: id})
		}
	}
	return events
}

func reindex(nodes map[string]capability.BookmarkNode, ids []string) {
	for i, id := range ids {
		n := nodes[id]
		n.Index = i
		nodes[id] = n
	}
}

func collectDescendants(children map[string][]string, id string, out *[]string) {
	for _, c := range children[id] {
		*out = append(*out, c)
		collectDescendants(children, c, out)
	}
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

var _ capability.BookmarkStore = (*BookmarkStore)(nil)
var _ capability.BookmarkEvents = (*BookmarkStore)(nil)
