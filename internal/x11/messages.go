package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
)

const (
	iconicState      = 3
	sourceIndication = 2 // pager/direct action
)

func (c *Connection) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(c.XUtil.Conn(), false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern %s: %w", name, err)
	}
	return reply.Atom, nil
}

// clientMessage sends a 32-bit format message of type typ about win to dest.
// The messages are built by hand because the xgbutil ewmh request helpers
// panic on this library version.
func (c *Connection) clientMessage(dest, win xproto.Window, mask uint32, typ string, data ...uint32) error {
	a, err := c.atom(typ)
	if err != nil {
		return err
	}
	payload := make([]uint32, 5)
	copy(payload, data)
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   a,
		Data:   xproto.ClientMessageDataUnionData32New(payload),
	}
	return xproto.SendEventChecked(c.XUtil.Conn(), false, dest, mask, string(ev.Bytes())).Check()
}

// toRoot is the event mask the window manager listens on.
const toRoot = xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify

// FocusWindow activates and raises a window using _NET_ACTIVE_WINDOW.
func (c *Connection) FocusWindow(win xproto.Window) error {
	return c.clientMessage(c.Root, win, toRoot, "_NET_ACTIVE_WINDOW", sourceIndication)
}

// IconifyWindow asks the window manager to minimize win.
func (c *Connection) IconifyWindow(win xproto.Window) error {
	return c.clientMessage(c.Root, win, toRoot, "WM_CHANGE_STATE", iconicState)
}

// RequestClose sends WM_DELETE_WINDOW so the client can close gracefully.
func (c *Connection) RequestClose(win xproto.Window) error {
	del, err := c.atom("WM_DELETE_WINDOW")
	if err != nil {
		return err
	}
	return c.clientMessage(win, win, xproto.EventMaskNoEvent, "WM_PROTOCOLS", uint32(del))
}

// IsMapped reports whether win is currently mapped.
func (c *Connection) IsMapped(win xproto.Window) (bool, error) {
	reply, err := xproto.GetWindowAttributes(c.XUtil.Conn(), win).Reply()
	if err != nil {
		return false, err
	}
	return reply.MapState != xproto.MapStateUnmapped, nil
}

// WithdrawWindow unmaps win and sends the synthetic UnmapNotify that tells
// the window manager to stop managing it (ICCCM 4.1.4).
func (c *Connection) WithdrawWindow(win xproto.Window) error {
	conn := c.XUtil.Conn()
	if err := xproto.UnmapWindowChecked(conn, win).Check(); err != nil {
		return fmt.Errorf("unmap: %w", err)
	}
	ev := xproto.UnmapNotifyEvent{Event: c.Root, Window: win}
	return xproto.SendEventChecked(conn, false, c.Root, toRoot, string(ev.Bytes())).Check()
}
