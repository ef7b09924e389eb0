// Package testutil provides shared test utilities and fakes for bmbridge tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bmbridge/bmbridge/internal/capability"
)

// TempDir creates a temporary directory for testing and returns a cleanup function.
func TempDir(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "bmbridge-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	return dir, func() {
		_ = os.RemoveAll(dir)
	}
}

// TempFile creates a temporary file with the given content and returns its path.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// FreePort returns an available TCP port on localhost.
func FreePort(t *testing.T) int {
	t.Helper()

	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to resolve address: %v", err)
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer func() { _ = l.Close() }()

	return l.Addr().(*net.TCPAddr).Port
}

// MockConn is a mock net.Conn for testing.
type MockConn struct {
	ReadData  []byte
	ReadErr   error
	WriteData []byte
	WriteErr  error
	Closed    bool
}

func (m *MockConn) Read(b []byte) (n int, err error) {
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	if len(m.ReadData) == 0 {
		return 0, io.EOF
	}
	n = copy(b, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

func (m *MockConn) Write(b []byte) (n int, err error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.WriteData = append(m.WriteData, b...)
	return len(b), nil
}

func (m *MockConn) Close() error {
	m.Closed = true
	return nil
}

func (m *MockConn) LocalAddr() net.Addr                { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0} }
func (m *MockConn) RemoteAddr() net.Addr               { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0} }
func (m *MockConn) SetDeadline(_ time.Time) error      { return nil }
func (m *MockConn) SetReadDeadline(_ time.Time) error  { return nil }
func (m *MockConn) SetWriteDeadline(_ time.Time) error { return nil }

// OpenFile opens a file for reading.
func OpenFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// FakeKVStore is an in-memory capability.KVStore for tests.
type FakeKVStore struct {
	mu   sync.Mutex
	data map[string][]byte

	// GetErr/SetErr, if set, are returned instead of performing the operation.
	GetErr error
	SetErr error
}

// NewFakeKVStore returns an empty FakeKVStore.
func NewFakeKVStore() *FakeKVStore {
	return &FakeKVStore{data: map[string][]byte{}}
}

func (f *FakeKVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, false, f.GetErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (f *FakeKVStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetErr != nil {
		return f.SetErr
	}
	out := make([]byte, len(value))
	copy(out, value)
	f.data[key] = out
	return nil
}

// Raw returns a copy of the raw bytes stored under key, for assertions.
func (f *FakeKVStore) Raw(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// FakeBookmarkStore is an in-memory capability.BookmarkStore for tests.
type FakeBookmarkStore struct {
	mu       sync.Mutex
	nodes    map[string]capability.BookmarkNode
	children map[string][]string
	nextID   int

	// Errs, keyed by node id, make every operation on that id (for Create,
	// on that parent id) fail for as long as the entry is set.
	Errs map[string]error
}

// NewFakeBookmarkStore seeds the store with the conventional root folder.
func NewFakeBookmarkStore() *FakeBookmarkStore {
	return &FakeBookmarkStore{
		nodes:    map[string]capability.BookmarkNode{capability.RootID: {ID: capability.RootID, Title: "root"}},
		children: map[string][]string{capability.RootID: {}},
		nextID:   1,
		Errs:     map[string]error{},
	}
}

func (f *FakeBookmarkStore) Get(_ context.Context, id string) (capability.BookmarkNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs[id]; err != nil {
		return capability.BookmarkNode{}, err
	}
	n, ok := f.nodes[id]
	if !ok {
		return capability.BookmarkNode{}, fmt.Errorf("node %s not found", id)
	}
	return n, nil
}

func (f *FakeBookmarkStore) GetChildren(_ context.Context, parentID string) ([]capability.BookmarkNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []capability.BookmarkNode
	for _, id := range f.children[parentID] {
		out = append(out, f.nodes[id])
	}
	return out, nil
}

func (f *FakeBookmarkStore) GetTree(_ context.Context) ([]capability.BookmarkNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capability.BookmarkNode, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *FakeBookmarkStore) Create(_ context.Context, in capability.CreateInput) (capability.BookmarkNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs[in.ParentID]; err != nil {
		return capability.BookmarkNode{}, err
	}
	if _, ok := f.nodes[in.ParentID]; !ok {
		return capability.BookmarkNode{}, fmt.Errorf("parent %s not found", in.ParentID)
	}
	id := fmt.Sprintf("%d", f.nextID)
	f.nextID++
	n := capability.BookmarkNode{
		ID:       id,
		ParentID: in.ParentID,
		Title:    in.Title,
		URL:      in.URL,
		Index:    len(f.children[in.ParentID]),
	}
	f.nodes[id] = n
	f.children[in.ParentID] = append(f.children[in.ParentID], id)
	f.children[id] = []string{}
	return n, nil
}

func (f *FakeBookmarkStore) Update(_ context.Context, id string, in capability.UpdateInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs[id]; err != nil {
		return err
	}
	n, ok := f.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	if in.Title != nil {
		n.Title = *in.Title
	}
	if in.URL != nil {
		n.URL = *in.URL
	}
	f.nodes[id] = n
	return nil
}

func (f *FakeBookmarkStore) Move(_ context.Context, id string, in capability.MoveInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs[id]; err != nil {
		return err
	}
	n, ok := f.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	old := n.ParentID
	f.children[old] = removeID(f.children[old], id)
	n.ParentID = in.ParentID
	f.children[in.ParentID] = append(f.children[in.ParentID], id)
	if in.Index != nil {
		n.Index = *in.Index
	}
	f.nodes[id] = n
	return nil
}

func (f *FakeBookmarkStore) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs[id]; err != nil {
		return err
	}
	n, ok := f.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	f.children[n.ParentID] = removeID(f.children[n.ParentID], id)
	delete(f.nodes, id)
	delete(f.children, id)
	return nil
}

func (f *FakeBookmarkStore) RemoveTree(ctx context.Context, id string) error {
	return f.Remove(ctx, id)
}

func removeID(ids []string, target string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
