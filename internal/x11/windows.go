package x11

import (
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// WindowMeta is the identifying metadata of a client window.
type WindowMeta struct {
	PID   int
	Class string
	Title string
}

// Describe reads the PID, WM_CLASS and title of win. Missing properties
// are left zero.
func (c *Connection) Describe(win xproto.Window) WindowMeta {
	var m WindowMeta
	if pid, err := ewmh.WmPidGet(c.XUtil, win); err == nil {
		m.PID = int(pid)
	}
	if cls, err := icccm.WmClassGet(c.XUtil, win); err == nil {
		m.Class = strings.TrimSpace(cls.Class)
	}
	if title, err := ewmh.WmNameGet(c.XUtil, win); err == nil {
		m.Title = strings.TrimSpace(title)
	}
	if m.Title == "" {
		if title, err := icccm.WmNameGet(c.XUtil, win); err == nil {
			m.Title = strings.TrimSpace(title)
		}
	}
	return m
}

// MoveResizeWindow places win at the given geometry. Maximized state is
// cleared first since most window managers ignore geometry requests for
// maximized windows.
func (c *Connection) MoveResizeWindow(win xproto.Window, x, y, width, height int) error {
	if states, err := ewmh.WmStateGet(c.XUtil, win); err == nil {
		for _, s := range states {
			if s == "_NET_WM_STATE_MAXIMIZED_HORZ" || s == "_NET_WM_STATE_MAXIMIZED_VERT" {
				_ = ewmh.WmStateReq(c.XUtil, win, ewmh.StateRemove, s)
			}
		}
	}
	if err := ewmh.MoveresizeWindow(c.XUtil, win, x, y, width, height); err != nil {
		xwindow.New(c.XUtil, win).MoveResize(x, y, width, height)
	}
	return nil
}

// HasState reports whether win carries the given _NET_WM_STATE atom.
func (c *Connection) HasState(win xproto.Window, state string) bool {
	states, err := ewmh.WmStateGet(c.XUtil, win)
	if err != nil {
		return false
	}
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

// WindowGeometry returns win's rectangle in root coordinates.
func (c *Connection) WindowGeometry(win xproto.Window) (Area, error) {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(win)).Reply()
	if err != nil {
		return Area{}, err
	}
	pos, err := xproto.TranslateCoordinates(c.XUtil.Conn(), win, c.Root, 0, 0).Reply()
	if err != nil {
		return Area{}, err
	}
	return Area{X: int(pos.DstX), Y: int(pos.DstY), Width: int(geom.Width), Height: int(geom.Height)}, nil
}

// IsNormalWindow reports whether win is an application window rather than
// a dock, desktop, splash or notification. Untyped windows count as normal.
func (c *Connection) IsNormalWindow(win xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, win)
	if err != nil {
		return true
	}
	for _, t := range types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_NORMAL", "_NET_WM_WINDOW_TYPE_DIALOG":
			return true
		case "_NET_WM_WINDOW_TYPE_DESKTOP", "_NET_WM_WINDOW_TYPE_DOCK",
			"_NET_WM_WINDOW_TYPE_SPLASH", "_NET_WM_WINDOW_TYPE_NOTIFICATION":
			return false
		}
	}
	return len(types) == 0
}

// ActiveWindow returns _NET_ACTIVE_WINDOW.
func (c *Connection) ActiveWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(c.XUtil)
}

// ClientWindows returns the managed top-level windows in _NET_CLIENT_LIST order.
func (c *Connection) ClientWindows() ([]xproto.Window, error) {
	return ewmh.ClientListGet(c.XUtil)
}
