package x11

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// Connection is an open X11 display plus its root window.
type Connection struct {
	XUtil *xgbutil.XUtil
	Root  xproto.Window
}

// NewConnection connects to $DISPLAY. RandR is initialized on first use.
func NewConnection() (*Connection, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, err
	}
	return &Connection{XUtil: xu, Root: xu.RootWin()}, nil
}

// WatchRootProperties calls fn with the atom name of every property change
// on the root window. Callbacks run on the event loop goroutine.
func (c *Connection) WatchRootProperties(fn func(atom string)) error {
	if err := xwindow.New(c.XUtil, c.Root).Listen(xproto.EventMaskPropertyChange); err != nil {
		return err
	}
	xevent.PropertyNotifyFun(func(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		if name, err := xprop.AtomName(xu, ev.Atom); err == nil {
			fn(name)
		}
	}).Connect(c.XUtil, c.Root)
	return nil
}

// EventLoop dispatches X events until Quit is called.
func (c *Connection) EventLoop() {
	xevent.Main(c.XUtil)
}

func (c *Connection) Quit() {
	xevent.Quit(c.XUtil)
}

func (c *Connection) Close() {
	c.XUtil.Conn().Close()
}
