package action

import (
	"errors"
	"fmt"

	"github.com/1broseidon/winrules/internal/platform"
	"github.com/1broseidon/winrules/internal/rules"
)

func doMove(x *Executor, t Target, spec rules.ActionSpec) error {
	if err := x.requireWindow(t); err != nil {
		return err
	}
	nx, err := spec.Int("x")
	if err != nil {
		return err
	}
	ny, err := spec.Int("y")
	if err != nil {
		return err
	}
	cur, err := x.windows.Geometry(t.Window)
	if err != nil {
		return err
	}
	return x.windows.MoveResize(t.Window, platform.Rect{X: nx, Y: ny, Width: cur.Width, Height: cur.Height})
}

func doResize(x *Executor, t Target, spec rules.ActionSpec) error {
	if err := x.requireWindow(t); err != nil {
		return err
	}
	w, err := spec.Int("width")
	if err != nil {
		return err
	}
	h, err := spec.Int("height")
	if err != nil {
		return err
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("width and height must be positive, got %dx%d", w, h)
	}
	cur, err := x.windows.Geometry(t.Window)
	if err != nil {
		return err
	}
	return x.windows.MoveResize(t.Window, platform.Rect{X: cur.X, Y: cur.Y, Width: w, Height: h})
}

func doMinimize(x *Executor, t Target, _ rules.ActionSpec) error {
	if err := x.requireWindow(t); err != nil {
		return err
	}
	return x.windows.Minimize(t.Window)
}

func doHide(x *Executor, t Target, _ rules.ActionSpec) error {
	if err := x.requireWindow(t); err != nil {
		return err
	}
	return x.windows.Hide(t.Window)
}

func doClose(x *Executor, t Target, _ rules.ActionSpec) error {
	if err := x.requireWindow(t); err != nil {
		return err
	}
	return x.windows.Close(t.Window)
}

func doFocus(x *Executor, t Target, _ rules.ActionSpec) error {
	if err := x.requireWindow(t); err != nil {
		return err
	}
	return x.windows.Focus(t.Window)
}

func doMoveToMonitor(x *Executor, t Target, spec rules.ActionSpec) error {
	if err := x.requireWindow(t); err != nil {
		return err
	}
	idx, err := spec.Int("monitor_index")
	if err != nil {
		return err
	}
	if x.displays == nil {
		return fmt.Errorf("monitor lookup unavailable")
	}
	displays, err := x.displays.Displays()
	if err != nil {
		return fmt.Errorf("list monitors: %w", err)
	}
	if idx < 0 || idx >= len(displays) {
		return fmt.Errorf("monitor_index %d out of range (%d monitors)", idx, len(displays))
	}
	cur, err := x.windows.Geometry(t.Window)
	if err != nil {
		return err
	}

	var src *platform.Display
	if i := platform.DisplayIndexAt(displays, cur); i >= 0 {
		src = &displays[i]
	}
	return x.windows.MoveResize(t.Window, placeOnDisplay(cur, src, displays[idx]))
}

// placeOnDisplay keeps the window's offset inside its work area when moving
// between displays, shrinking and clamping so it fits the destination.
func placeOnDisplay(win platform.Rect, src *platform.Display, dst platform.Display) platform.Rect {
	area := usable(dst)
	out := platform.Rect{X: area.X, Y: area.Y, Width: win.Width, Height: win.Height}
	if src != nil {
		from := usable(*src)
		out.X = area.X + (win.X - from.X)
		out.Y = area.Y + (win.Y - from.Y)
	}

	if out.Width > area.Width {
		out.Width = area.Width
	}
	if out.Height > area.Height {
		out.Height = area.Height
	}
	if out.X+out.Width > area.X+area.Width {
		out.X = area.X + area.Width - out.Width
	}
	if out.Y+out.Height > area.Y+area.Height {
		out.Y = area.Y + area.Height - out.Height
	}
	if out.X < area.X {
		out.X = area.X
	}
	if out.Y < area.Y {
		out.Y = area.Y
	}
	return out
}

func usable(d platform.Display) platform.Rect {
	if d.Usable.Empty() {
		return d.Bounds
	}
	return d.Usable
}

func doMinimizeOthers(x *Executor, t Target, _ rules.ActionSpec) error {
	if err := x.requireWindow(t); err != nil {
		return err
	}
	var errs []error
	for _, peer := range t.Peers {
		if peer == t.Window {
			continue
		}
		if err := x.windows.Minimize(peer); err != nil && !errors.Is(err, platform.ErrNoChange) {
			errs = append(errs, fmt.Errorf("window 0x%x: %w", uint32(peer), err))
		}
	}
	return errors.Join(errs...)
}

// doCloseDuplicates closes the older copies of the target window and then
// brings the target forward. With no duplicates it changes nothing.
func doCloseDuplicates(x *Executor, t Target, _ rules.ActionSpec) error {
	if err := x.requireWindow(t); err != nil {
		return err
	}
	var (
		errs   []error
		closed int
	)
	for _, dup := range t.Duplicates {
		if dup == t.Window {
			continue
		}
		if err := x.windows.Close(dup); err != nil {
			errs = append(errs, fmt.Errorf("window 0x%x: %w", uint32(dup), err))
			continue
		}
		closed++
	}
	if closed == 0 && len(errs) == 0 {
		return platform.ErrNoChange
	}
	if err := x.windows.Focus(t.Window); err != nil && !errors.Is(err, platform.ErrNoChange) {
		errs = append(errs, fmt.Errorf("focus survivor: %w", err))
	}
	return errors.Join(errs...)
}

func doTerminateProcess(x *Executor, t Target, _ rules.ActionSpec) error {
	if t.PID <= 0 {
		return fmt.Errorf("no target process")
	}
	if x.procs == nil {
		return fmt.Errorf("process control unavailable")
	}
	return x.procs.Terminate(t.PID)
}
