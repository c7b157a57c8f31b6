package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1broseidon/winrules/internal/monitor"
	"github.com/1broseidon/winrules/internal/platform"
)

type fakeBackend struct {
	mu       sync.Mutex
	windows  map[platform.WindowID]platform.Window
	order    []platform.WindowID
	displays []platform.Display
	closeErr error
	calls    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		windows: make(map[platform.WindowID]platform.Window),
		displays: []platform.Display{
			{ID: 0, Name: "left", Bounds: platform.Rect{Width: 1920, Height: 1080}, Usable: platform.Rect{Width: 1920, Height: 1050}},
			{ID: 1, Name: "right", Bounds: platform.Rect{X: 1920, Width: 1920, Height: 1080}, Usable: platform.Rect{X: 1920, Width: 1920, Height: 1050}},
		},
	}
}

func (b *fakeBackend) add(w platform.Window) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.windows[w.ID]; !ok {
		b.order = append(b.order, w.ID)
	}
	b.windows[w.ID] = w
}

func (b *fakeBackend) record(format string, args ...any) {
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) Displays() ([]platform.Display, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]platform.Display(nil), b.displays...), nil
}

func (b *fakeBackend) ActiveWindow() (platform.WindowID, error) {
	return 0, nil
}

func (b *fakeBackend) ListWindows() ([]platform.Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]platform.Window, 0, len(b.order))
	for _, id := range b.order {
		if w, ok := b.windows[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (b *fakeBackend) Geometry(id platform.WindowID) (platform.Rect, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[id]
	if !ok {
		return platform.Rect{}, errors.New("bad window")
	}
	return w.Bounds, nil
}

func (b *fakeBackend) MoveResize(id platform.WindowID, r platform.Rect) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("move_resize %d %d,%d %dx%d", id, r.X, r.Y, r.Width, r.Height)
	if w, ok := b.windows[id]; ok {
		w.Bounds = r
		b.windows[id] = w
	}
	return nil
}

func (b *fakeBackend) Minimize(id platform.WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("minimize %d", id)
	return nil
}

func (b *fakeBackend) Hide(id platform.WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("hide %d", id)
	return nil
}

func (b *fakeBackend) Close(id platform.WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("close %d", id)
	return b.closeErr
}

func (b *fakeBackend) Focus(id platform.WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("focus %d", id)
	return nil
}

type fakeProcs struct {
	mu    sync.Mutex
	names map[int]string
}

func newFakeProcs(names map[int]string) *fakeProcs {
	return &fakeProcs{names: names}
}

func (p *fakeProcs) PIDs(context.Context) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.names))
	for pid := range p.names {
		out = append(out, pid)
	}
	return out, nil
}

func (p *fakeProcs) Name(pid int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok := p.names[pid]; ok {
		return n, nil
	}
	return "", errors.New("no such process")
}

func (p *fakeProcs) Terminate(pid int) error {
	return errors.New("not permitted")
}

// chanSource hands the test full control over signal timing.
type chanSource struct {
	in   chan monitor.Signal
	quit chan struct{}
}

func newChanSource() *chanSource {
	return &chanSource{in: make(chan monitor.Signal), quit: make(chan struct{})}
}

// drop closes every open subscription as if the display went away.
func (s *chanSource) drop() { close(s.quit) }

func (s *chanSource) Subscribe(ctx context.Context) (<-chan monitor.Signal, error) {
	out := make(chan monitor.Signal)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.quit:
				return
			case sig := <-s.in:
				select {
				case out <- sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type failingSource struct{}

func (failingSource) Subscribe(context.Context) (<-chan monitor.Signal, error) {
	return nil, errors.New("cannot open display")
}
