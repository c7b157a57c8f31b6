//go:build linux

package platform

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/winrules/internal/x11"
)

var errNoConnection = errors.New("x11 backend connection is nil")

// LinuxBackend implements Backend on an X11 connection with an EWMH
// compliant window manager.
type LinuxBackend struct {
	conn *x11.Connection
}

var _ Backend = (*LinuxBackend)(nil)

// NewLinuxBackend wraps an existing X11 connection.
func NewLinuxBackend(conn *x11.Connection) *LinuxBackend {
	return &LinuxBackend{conn: conn}
}

// NewLinuxBackendFromDisplay opens a connection to $DISPLAY.
func NewLinuxBackendFromDisplay() (*LinuxBackend, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return &LinuxBackend{conn: conn}, nil
}

// Disconnect closes the underlying X11 connection.
func (b *LinuxBackend) Disconnect() {
	if b != nil && b.conn != nil {
		b.conn.Close()
	}
}

// EventLoop runs the X11 event loop until StopEventLoop is called.
func (b *LinuxBackend) EventLoop() {
	if b != nil && b.conn != nil {
		b.conn.EventLoop()
	}
}

// StopEventLoop makes a running EventLoop return.
func (b *LinuxBackend) StopEventLoop() {
	if b != nil && b.conn != nil {
		b.conn.Quit()
	}
}

// OnClientListChange calls fn whenever the window manager updates the client
// list or the active window. It must be registered before EventLoop starts.
func (b *LinuxBackend) OnClientListChange(fn func()) error {
	if b.conn == nil {
		return errNoConnection
	}
	return b.conn.WatchRootProperties(func(atom string) {
		switch atom {
		case "_NET_CLIENT_LIST", "_NET_ACTIVE_WINDOW":
			fn()
		}
	})
}

// Displays returns the active displays ordered by ID.
func (b *LinuxBackend) Displays() ([]Display, error) {
	if b.conn == nil {
		return nil, errNoConnection
	}
	monitors, err := b.conn.GetMonitors()
	if err != nil {
		return nil, err
	}
	displays := make([]Display, 0, len(monitors))
	for _, m := range monitors {
		displays = append(displays, Display{
			ID:     m.ID,
			Name:   m.Name,
			Bounds: rect(m.Area),
			Usable: rect(b.conn.UsableArea(m)),
		})
	}
	sort.Slice(displays, func(i, j int) bool { return displays[i].ID < displays[j].ID })
	return displays, nil
}

func (b *LinuxBackend) ActiveWindow() (WindowID, error) {
	if b.conn == nil {
		return 0, errNoConnection
	}
	win, err := b.conn.ActiveWindow()
	if err != nil {
		return 0, err
	}
	return WindowID(win), nil
}

// ListWindows lists every managed normal window, minimized ones included,
// ordered by ID.
func (b *LinuxBackend) ListWindows() ([]Window, error) {
	if b.conn == nil {
		return nil, errNoConnection
	}
	clients, err := b.conn.ClientWindows()
	if err != nil {
		return nil, err
	}

	windows := make([]Window, 0, len(clients))
	for _, win := range clients {
		if !b.conn.IsNormalWindow(win) {
			continue
		}
		area, err := b.conn.WindowGeometry(win)
		if err != nil {
			// destroyed since the list was read
			continue
		}
		meta := b.conn.Describe(win)
		windows = append(windows, Window{
			ID:     WindowID(win),
			PID:    meta.PID,
			Class:  meta.Class,
			Title:  meta.Title,
			Bounds: rect(area),
		})
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].ID < windows[j].ID })
	return windows, nil
}

func (b *LinuxBackend) Geometry(id WindowID) (Rect, error) {
	if b.conn == nil {
		return Rect{}, errNoConnection
	}
	area, err := b.conn.WindowGeometry(xproto.Window(id))
	if err != nil {
		return Rect{}, fmt.Errorf("window 0x%x: %w", uint32(id), err)
	}
	return rect(area), nil
}

// MoveResize returns ErrNoChange when the window already has bounds.
func (b *LinuxBackend) MoveResize(id WindowID, bounds Rect) error {
	current, err := b.Geometry(id)
	if err != nil {
		return err
	}
	if current == bounds {
		return ErrNoChange
	}
	return b.conn.MoveResizeWindow(xproto.Window(id), bounds.X, bounds.Y, bounds.Width, bounds.Height)
}

// Minimize returns ErrNoChange for a window that is already hidden.
func (b *LinuxBackend) Minimize(id WindowID) error {
	if b.conn == nil {
		return errNoConnection
	}
	if b.conn.HasState(xproto.Window(id), "_NET_WM_STATE_HIDDEN") {
		return ErrNoChange
	}
	return b.conn.IconifyWindow(xproto.Window(id))
}

// Hide withdraws the window from the screen. It returns ErrNoChange for a
// window that is already unmapped.
func (b *LinuxBackend) Hide(id WindowID) error {
	if b.conn == nil {
		return errNoConnection
	}
	mapped, err := b.conn.IsMapped(xproto.Window(id))
	if err != nil {
		return fmt.Errorf("window 0x%x: %w", uint32(id), err)
	}
	if !mapped {
		return ErrNoChange
	}
	return b.conn.WithdrawWindow(xproto.Window(id))
}

// Close asks the client to close the window; it may refuse or prompt.
func (b *LinuxBackend) Close(id WindowID) error {
	if b.conn == nil {
		return errNoConnection
	}
	return b.conn.RequestClose(xproto.Window(id))
}

// Focus returns ErrNoChange when the window is already active.
func (b *LinuxBackend) Focus(id WindowID) error {
	if b.conn == nil {
		return errNoConnection
	}
	if active, err := b.conn.ActiveWindow(); err == nil && WindowID(active) == id {
		return ErrNoChange
	}
	return b.conn.FocusWindow(xproto.Window(id))
}

func rect(a x11.Area) Rect {
	return Rect{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}
}
