package hostfs

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bmbridge/bmbridge/internal/capability"
)

// debounceWindow coalesces bursts of writes to a single file (editors
// often write, chmod, then rename) into one reload signal.
const debounceWindow = 500 * time.Millisecond

// FileWatcher is a capability.FileWatcher backed by fsnotify. Each call
// to Watch starts its own debounced watch on the file's parent
// directory, since fsnotify only watches directories reliably across
// platforms.
type FileWatcher struct{}

// NewFileWatcher builds a FileWatcher.
func NewFileWatcher() *FileWatcher {
	return &FileWatcher{}
}

func (FileWatcher) Watch(path string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	base := filepath.Base(path)
	out := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()
		defer close(out)

		var debounce *time.Timer
		var debounceC <-chan time.Time

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.NewTimer(debounceWindow)
				debounceC = debounce.C

			case <-debounceC:
				debounceC = nil
				select {
				case out <- struct{}{}:
				default:
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return out, nil
}

var _ capability.FileWatcher = FileWatcher{}
