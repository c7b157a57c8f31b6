package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/1broseidon/winrules/internal/platform"
)

// Kind identifies the lifecycle occurrence an Event describes.
type Kind int

const (
	WindowCreated Kind = iota + 1
	WindowDestroyed
	WindowActivated
	WindowMoved
	ProcessStarted
	ProcessStopped
)

// NoMonitor marks an event whose display could not be determined.
const NoMonitor = -1

var kindNames = map[Kind]string{
	WindowCreated:   "window_created",
	WindowDestroyed: "window_destroyed",
	WindowActivated: "window_activated",
	WindowMoved:     "window_moved",
	ProcessStarted:  "process_started",
	ProcessStopped:  "process_stopped",
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	return []Kind{WindowCreated, WindowDestroyed, WindowActivated, WindowMoved, ProcessStarted, ProcessStopped}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsWindow reports whether events of this kind carry a window handle.
func (k Kind) IsWindow() bool {
	switch k {
	case WindowCreated, WindowDestroyed, WindowActivated, WindowMoved:
		return true
	}
	return false
}

// ParseKind maps a snake_case kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	names := make([]string, 0, len(kindNames))
	for _, k := range Kinds() {
		if kindNames[k] == s {
			return k, nil
		}
		names = append(names, kindNames[k])
	}
	return 0, fmt.Errorf("unknown event kind %q (want one of %s)", s, strings.Join(names, ", "))
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is one captured window or process lifecycle occurrence. Values are
// built by the monitor at capture time and never modified afterwards.
type Event struct {
	Kind        Kind
	Window      platform.WindowID // zero for process events
	PID         int               // zero when unresolved
	ProcessName string
	Title       string
	WindowClass string
	Bounds      platform.Rect
	Monitor     int // NoMonitor when undeterminable
	Time        time.Time
}

// HasWindow reports whether the event refers to a window handle.
func (e Event) HasWindow() bool {
	return e.Kind.IsWindow() && e.Window != 0
}

// HasMonitor reports whether the display index was resolved.
func (e Event) HasMonitor() bool {
	return e.Monitor >= 0
}
