package platform

import "errors"

// ErrNoChange is returned when a request left the window exactly as it was.
// Callers treat it as success.
var ErrNoChange = errors.New("window state unchanged")

// WindowID is a platform-neutral window identifier.
type WindowID uint32

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Center returns the center point of the rect.
func (r Rect) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Contains reports whether the point lies inside the rect.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Display describes a physical display and its usable work area.
type Display struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Bounds Rect   `json:"bounds"`
	Usable Rect   `json:"usable"`
}

// Window contains metadata and geometry for a top-level window.
type Window struct {
	ID     WindowID `json:"id"`
	PID    int      `json:"pid"`
	Class  string   `json:"class"`
	Title  string   `json:"title"`
	Bounds Rect     `json:"bounds"`
}

// Backend abstracts window-system operations across platforms.
type Backend interface {
	Displays() ([]Display, error)
	ActiveWindow() (WindowID, error)
	ListWindows() ([]Window, error)
	Geometry(windowID WindowID) (Rect, error)
	MoveResize(windowID WindowID, bounds Rect) error
	Minimize(windowID WindowID) error
	Hide(windowID WindowID) error
	Close(windowID WindowID) error
	Focus(windowID WindowID) error
}

// DisplayIndexAt returns the index into displays of the display containing
// the center of r, or -1 when none does.
func DisplayIndexAt(displays []Display, r Rect) int {
	if r.Empty() {
		return -1
	}
	cx, cy := r.Center()
	for i, d := range displays {
		if d.Bounds.Contains(cx, cy) {
			return i
		}
	}
	return -1
}
