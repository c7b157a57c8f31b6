package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// Area is a rectangle in root window coordinates.
type Area struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Empty reports whether a has no area.
func (a Area) Empty() bool {
	return a.Width <= 0 || a.Height <= 0
}

// Intersect returns the overlap of a and b, or an empty Area.
func (a Area) Intersect(b Area) Area {
	x1, y1 := max(a.X, b.X), max(a.Y, b.Y)
	x2, y2 := min(a.X+a.Width, b.X+b.Width), min(a.Y+a.Height, b.Y+b.Height)
	if x2 <= x1 || y2 <= y1 {
		return Area{}
	}
	return Area{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Monitor is one active RandR CRTC. ID is the CRTC's position in the
// screen resources, which is stable while the layout does not change.
type Monitor struct {
	ID   int
	Name string
	Area
}

// GetMonitors lists the active monitors in CRTC order.
func (c *Connection) GetMonitors() ([]Monitor, error) {
	xc := c.XUtil.Conn()
	if err := randr.Init(xc); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}
	resources, err := randr.GetScreenResources(xc, c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor
	for i, crtc := range resources.Crtcs {
		info, err := randr.GetCrtcInfo(xc, crtc, resources.ConfigTimestamp).Reply()
		if err != nil || info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}
		name := fmt.Sprintf("Monitor%d", i)
		if out, err := randr.GetOutputInfo(xc, info.Outputs[0], resources.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}
		monitors = append(monitors, Monitor{
			ID:   i,
			Name: name,
			Area: Area{X: int(info.X), Y: int(info.Y), Width: int(info.Width), Height: int(info.Height)},
		})
	}
	return monitors, nil
}

// UsableArea returns mon's geometry minus dock struts. When no dock
// reserves space on mon, the EWMH work area of the current desktop is
// used instead.
func (c *Connection) UsableArea(mon Monitor) Area {
	if usable, ok := c.subtractDocks(mon.Area); ok {
		return usable
	}

	workAreas, err := ewmh.WorkareaGet(c.XUtil)
	if err != nil || len(workAreas) == 0 {
		return mon.Area
	}
	idx := 0
	if cur, err := ewmh.CurrentDesktopGet(c.XUtil); err == nil && int(cur) < len(workAreas) {
		idx = int(cur)
	}
	wa := workAreas[idx]
	if isect := mon.Area.Intersect(Area{X: wa.X, Y: wa.Y, Width: int(wa.Width), Height: int(wa.Height)}); !isect.Empty() {
		return isect
	}
	return mon.Area
}

// subtractDocks shrinks mon by the largest strut each dock window reserves
// on each edge. It reports false when no dock overlaps mon.
func (c *Connection) subtractDocks(mon Area) (Area, bool) {
	root, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(c.Root)).Reply()
	if err != nil {
		return mon, false
	}
	rootW, rootH := int(root.Width), int(root.Height)

	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return mon, false
	}

	var left, right, top, bottom int
	for _, win := range clients {
		if !c.isDock(win) {
			continue
		}
		sp, ok := c.strut(win, rootW, rootH)
		if !ok {
			continue
		}
		if sp.Top > 0 {
			top = max(top, mon.Intersect(Area{X: int(sp.TopStartX), Width: span(sp.TopStartX, sp.TopEndX), Height: int(sp.Top)}).Height)
		}
		if sp.Bottom > 0 {
			bottom = max(bottom, mon.Intersect(Area{X: int(sp.BottomStartX), Y: rootH - int(sp.Bottom), Width: span(sp.BottomStartX, sp.BottomEndX), Height: int(sp.Bottom)}).Height)
		}
		if sp.Left > 0 {
			left = max(left, mon.Intersect(Area{Y: int(sp.LeftStartY), Width: int(sp.Left), Height: span(sp.LeftStartY, sp.LeftEndY)}).Width)
		}
		if sp.Right > 0 {
			right = max(right, mon.Intersect(Area{X: rootW - int(sp.Right), Y: int(sp.RightStartY), Width: int(sp.Right), Height: span(sp.RightStartY, sp.RightEndY)}).Width)
		}
	}
	if left == 0 && right == 0 && top == 0 && bottom == 0 {
		return mon, false
	}

	return Area{
		X:      mon.X + left,
		Y:      mon.Y + top,
		Width:  max(1, mon.Width-left-right),
		Height: max(1, mon.Height-top-bottom),
	}, true
}

func (c *Connection) isDock(win xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, win)
	if err != nil {
		return false
	}
	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_DOCK" {
			return true
		}
	}
	return false
}

// strut reads _NET_WM_STRUT_PARTIAL, falling back to _NET_WM_STRUT spanning
// the whole root edge.
func (c *Connection) strut(win xproto.Window, rootW, rootH int) (*ewmh.WmStrutPartial, bool) {
	if sp, err := ewmh.WmStrutPartialGet(c.XUtil, win); err == nil {
		return sp, true
	}
	s, err := ewmh.WmStrutGet(c.XUtil, win)
	if err != nil {
		return nil, false
	}
	return &ewmh.WmStrutPartial{
		Left: s.Left, Right: s.Right, Top: s.Top, Bottom: s.Bottom,
		LeftEndY:   uint(rootH - 1),
		RightEndY:  uint(rootH - 1),
		TopEndX:    uint(rootW - 1),
		BottomEndX: uint(rootW - 1),
	}, true
}

func span(start, end uint) int {
	return int(end) - int(start) + 1
}
