// Package hostfs provides the concrete, disk-backed implementations of
// the capability interfaces that the standalone CLI daemon runs
// against: timers, key/value persistence, desktop notifications, a
// file-change watcher, and the local bookmark tree itself. Every type
// here is a leaf adapter; none of it is imported by internal/core.
package hostfs

import (
	"sync"
	"time"

	"github.com/bmbridge/bmbridge/internal/capability"
)

// Timers is a capability.Timers backed by the standard library's
// time.AfterFunc and time.Ticker.
type Timers struct{}

// NewTimers builds a Timers.
func NewTimers() *Timers {
	return &Timers{}
}

func (Timers) After(d time.Duration, fn func()) capability.CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

func (Timers) Repeating(d time.Duration, fn func()) capability.CancelFunc {
	ticker := time.NewTicker(d)
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-stop:
				ticker.Stop()
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() { close(stop) })
	}
}

var _ capability.Timers = Timers{}
