package hostfs

import (
	"github.com/gen2brain/beeep"

	"github.com/bmbridge/bmbridge/internal/capability"
)

// Notifier is a capability.Notifier backed by beeep, which dispatches
// through the native notification center on each supported platform.
type Notifier struct{}

// NewNotifier builds a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

func (Notifier) Notify(title, body string) error {
	return beeep.Notify(title, body, "")
}

var _ capability.Notifier = Notifier{}
