package action

import (
	"errors"
	"fmt"
	"sort"

	"github.com/1broseidon/winrules/internal/platform"
	"github.com/1broseidon/winrules/internal/rules"
)

// ErrNoTarget is returned by window actions when the event has no window.
var ErrNoTarget = errors.New("no target window")

// WindowManipulator performs window-system side effects.
type WindowManipulator interface {
	Geometry(id platform.WindowID) (platform.Rect, error)
	MoveResize(id platform.WindowID, bounds platform.Rect) error
	Minimize(id platform.WindowID) error
	Hide(id platform.WindowID) error
	Close(id platform.WindowID) error
	Focus(id platform.WindowID) error
}

// DisplayLookup resolves monitor geometry.
type DisplayLookup interface {
	Displays() ([]platform.Display, error)
}

// ProcessTerminator ends a process by PID.
type ProcessTerminator interface {
	Terminate(pid int) error
}

// Target identifies what an action list operates on.
type Target struct {
	Window      platform.WindowID
	PID         int
	ProcessName string
	// Peers are other tracked windows of the same process name.
	Peers []platform.WindowID
	// Duplicates are older tracked windows with the same class and title.
	Duplicates []platform.WindowID
}

// Result is the outcome of one action. Failures carry a diagnostic.
type Result struct {
	Type       string
	OK         bool
	Diagnostic string
}

type handler func(x *Executor, t Target, spec rules.ActionSpec) error

var handlers = map[string]handler{
	"move":              doMove,
	"resize":            doResize,
	"minimize":          doMinimize,
	"hide":              doHide,
	"close":             doClose,
	"move_to_monitor":   doMoveToMonitor,
	"focus":             doFocus,
	"minimize_others":   doMinimizeOthers,
	"terminate_process": doTerminateProcess,
	"close_duplicates":  doCloseDuplicates,
}

// Known reports whether typ is a supported action type.
func Known(typ string) bool {
	_, ok := handlers[typ]
	return ok
}

// Types lists the supported action types.
func Types() []string {
	out := make([]string, 0, len(handlers))
	for typ := range handlers {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Executor applies action specifications through injected capabilities.
type Executor struct {
	windows  WindowManipulator
	displays DisplayLookup
	procs    ProcessTerminator
}

// NewExecutor builds an executor. procs may be nil, in which case
// terminate_process always fails.
func NewExecutor(windows WindowManipulator, displays DisplayLookup, procs ProcessTerminator) *Executor {
	return &Executor{windows: windows, displays: displays, procs: procs}
}

// Execute applies one action to t. It never panics; every failure, unknown
// types included, comes back as a failed Result.
func (x *Executor) Execute(t Target, spec rules.ActionSpec) (res Result) {
	res.Type = spec.Type
	defer func() {
		if r := recover(); r != nil {
			res.OK = false
			res.Diagnostic = fmt.Sprintf("panic: %v", r)
		}
	}()

	h, ok := handlers[spec.Type]
	if !ok {
		res.Diagnostic = fmt.Sprintf("unknown action type %q", spec.Type)
		return res
	}

	err := h(x, t, spec)
	switch {
	case err == nil:
		res.OK = true
	case errors.Is(err, platform.ErrNoChange):
		res.OK = true
		res.Diagnostic = "no change"
	default:
		res.Diagnostic = err.Error()
	}
	return res
}

func (x *Executor) requireWindow(t Target) error {
	if t.Window == 0 {
		return ErrNoTarget
	}
	if x.windows == nil {
		return fmt.Errorf("window manipulation unavailable")
	}
	return nil
}
