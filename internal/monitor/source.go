package monitor

import (
	"context"
	"time"

	"github.com/1broseidon/winrules/internal/event"
	"github.com/1broseidon/winrules/internal/platform"
)

// Signal is a raw notification from a Source, before normalization.
type Signal struct {
	Kind        event.Kind
	Window      platform.WindowID
	PID         int
	ProcessName string
	Title       string
	Class       string
	Bounds      platform.Rect
	At          time.Time
}

// Source produces raw signals in the order they were observed.
type Source interface {
	// Subscribe establishes the OS subscription and streams signals until
	// ctx is cancelled, at which point the channel is closed. An error means
	// the subscription could not be established.
	Subscribe(ctx context.Context) (<-chan Signal, error)
}

// Consumer receives normalized events one at a time.
type Consumer interface {
	ProcessEvent(ev event.Event)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ev event.Event)

func (f ConsumerFunc) ProcessEvent(ev event.Event) { f(ev) }

// NameResolver maps a PID to a process name, returning "" when unknown.
type NameResolver interface {
	Name(pid int) string
}

// DisplayLookup lists the current displays.
type DisplayLookup interface {
	Displays() ([]platform.Display, error)
}
