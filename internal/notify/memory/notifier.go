// Package memory contains an in-memory notifier for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// Notifier stores published events for inspection.
type Notifier struct {
	mu     sync.RWMutex
	events []archive.Event
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Publish records the event and returns a pseudo ID.
func (n *Notifier) Publish(_ context.Context, event archive.Event) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return fmt.Sprintf("memory-%d", len(n.events)), nil
}

// Events returns the recorded publishes.
func (n *Notifier) Events() []archive.Event {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]archive.Event, len(n.events))
	copy(out, n.events)
	return out
}
