package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/winrules/internal/event"
	"github.com/1broseidon/winrules/internal/platform"
)

// chanSource forwards whatever the test pushes into in.
type chanSource struct {
	in  chan Signal
	err error
}

func newChanSource() *chanSource {
	return &chanSource{in: make(chan Signal)}
}

func (s *chanSource) Subscribe(ctx context.Context) (<-chan Signal, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan Signal)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
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

type collector struct {
	mu     sync.Mutex
	events []event.Event
	got    chan event.Event
}

func newCollector() *collector {
	return &collector{got: make(chan event.Event, 128)}
}

func (c *collector) ProcessEvent(ev event.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.got <- ev
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case ev := <-c.got:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func (c *collector) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-c.got:
		t.Fatalf("unexpected event %s for window %d", ev.Kind, ev.Window)
	case <-time.After(wait):
	}
}

func startMonitor(t *testing.T, cfg Config, consumer Consumer) *Monitor {
	t.Helper()
	m := New(cfg)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Start(context.Background(), consumer))
	t.Cleanup(m.Stop)
	return m
}

func TestStart_TwiceFailsWithoutCrashing(t *testing.T) {
	src := newChanSource()
	m := startMonitor(t, Config{Source: src}, newCollector())

	err := m.Start(context.Background(), newCollector())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.True(t, m.IsRunning())

	m.Stop()
	m.Stop()
	assert.False(t, m.IsRunning())

	require.NoError(t, m.Start(context.Background(), newCollector()))
	assert.True(t, m.IsRunning())
}

func TestStart_SubscriptionFailureIsSurfaced(t *testing.T) {
	src := newChanSource()
	src.err = errors.New("cannot open display")
	m := New(Config{Source: src})

	err := m.Start(context.Background(), newCollector())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open display")
	assert.False(t, m.IsRunning())
}

func TestInitialize_RequiresSource(t *testing.T) {
	m := New(Config{})
	assert.ErrorIs(t, m.Initialize(), ErrNoSource)
	assert.ErrorIs(t, m.Start(context.Background(), newCollector()), ErrNoSource)
}

func TestDelivery_PreservesOrderWithoutDeduplication(t *testing.T) {
	src := newChanSource()
	c := newCollector()
	startMonitor(t, Config{Source: src}, c)

	sent := []Signal{
		{Kind: event.WindowCreated, Window: 1},
		{Kind: event.WindowActivated, Window: 1},
		{Kind: event.WindowActivated, Window: 1},
		{Kind: event.ProcessStarted, PID: 44},
		{Kind: event.WindowDestroyed, Window: 1},
	}
	for _, sig := range sent {
		src.in <- sig
	}

	for i, want := range sent {
		got := c.next(t)
		assert.Equal(t, want.Kind, got.Kind, "event %d", i)
		assert.Equal(t, want.Window, got.Window, "event %d", i)
	}
}

func TestCoalescing_DeliversOnlyLastMovePerHandle(t *testing.T) {
	src := newChanSource()
	c := newCollector()
	m := startMonitor(t, Config{Source: src, CoalesceWindow: 200 * time.Millisecond}, c)

	for i := 1; i <= 10; i++ {
		src.in <- Signal{Kind: event.WindowMoved, Window: 9, Bounds: platform.Rect{X: i * 10, Y: 0, Width: 100, Height: 100}}
	}

	got := c.next(t)
	assert.Equal(t, event.WindowMoved, got.Kind)
	assert.Equal(t, 100, got.Bounds.X)
	c.none(t, 300*time.Millisecond)
	assert.Equal(t, uint64(9), m.Status().Coalesced)
}

func TestCoalescing_PendingMovesFlushBeforeOtherKinds(t *testing.T) {
	src := newChanSource()
	c := newCollector()
	startMonitor(t, Config{Source: src, CoalesceWindow: time.Hour}, c)

	src.in <- Signal{Kind: event.WindowMoved, Window: 1, Bounds: platform.Rect{X: 1, Width: 10, Height: 10}}
	src.in <- Signal{Kind: event.WindowMoved, Window: 2, Bounds: platform.Rect{X: 2, Width: 10, Height: 10}}
	src.in <- Signal{Kind: event.WindowMoved, Window: 1, Bounds: platform.Rect{X: 3, Width: 10, Height: 10}}
	src.in <- Signal{Kind: event.WindowDestroyed, Window: 1}

	first := c.next(t)
	assert.Equal(t, platform.WindowID(1), first.Window)
	assert.Equal(t, 3, first.Bounds.X)
	second := c.next(t)
	assert.Equal(t, platform.WindowID(2), second.Window)
	third := c.next(t)
	assert.Equal(t, event.WindowDestroyed, third.Kind)
}

func TestCoalescing_Disabled(t *testing.T) {
	src := newChanSource()
	c := newCollector()
	startMonitor(t, Config{Source: src, CoalesceWindow: -1}, c)

	src.in <- Signal{Kind: event.WindowMoved, Window: 1}
	src.in <- Signal{Kind: event.WindowMoved, Window: 1}
	c.next(t)
	c.next(t)
}

func TestStop_WaitsForInFlightDelivery(t *testing.T) {
	src := newChanSource()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls sync.WaitGroup
	var mu sync.Mutex
	delivered := 0

	consumer := ConsumerFunc(func(ev event.Event) {
		mu.Lock()
		delivered++
		first := delivered == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
	})

	m := New(Config{Source: src})
	require.NoError(t, m.Start(context.Background(), consumer))

	src.in <- Signal{Kind: event.WindowCreated, Window: 1}
	<-entered

	stopped := make(chan struct{})
	calls.Add(1)
	go func() {
		defer calls.Done()
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while delivery was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	calls.Wait()
	assert.False(t, m.IsRunning())

	// Nobody is listening any more.
	select {
	case src.in <- Signal{Kind: event.WindowCreated, Window: 2}:
		t.Fatal("signal accepted after stop")
	case <-time.After(50 * time.Millisecond):
	}
	mu.Lock()
	assert.Equal(t, 1, delivered)
	mu.Unlock()
}

type fakeNames map[int]string

func (f fakeNames) Name(pid int) string { return f[pid] }

type fakeDisplayLookup []platform.Display

func (f fakeDisplayLookup) Displays() ([]platform.Display, error) { return f, nil }

func TestNormalize_ResolvesFieldsAndDegradesGracefully(t *testing.T) {
	src := newChanSource()
	c := newCollector()
	displays := fakeDisplayLookup{
		{ID: 0, Bounds: platform.Rect{Width: 1920, Height: 1080}},
		{ID: 1, Bounds: platform.Rect{X: 1920, Width: 1920, Height: 1080}},
	}
	startMonitor(t, Config{Source: src, Names: fakeNames{10: "chrome"}, Displays: displays}, c)

	src.in <- Signal{Kind: event.WindowCreated, Window: 1, PID: 10, Bounds: platform.Rect{X: 2000, Y: 10, Width: 400, Height: 300}}
	src.in <- Signal{Kind: event.WindowCreated, Window: 2, PID: 99}

	ev := c.next(t)
	assert.Equal(t, "chrome", ev.ProcessName)
	assert.Equal(t, 1, ev.Monitor)
	assert.False(t, ev.Time.IsZero())

	ev = c.next(t)
	assert.Equal(t, platform.WindowID(2), ev.Window)
	assert.Empty(t, ev.ProcessName)
	assert.Equal(t, event.NoMonitor, ev.Monitor)
}

func TestDelivery_ConsumerPanicDoesNotStopCapture(t *testing.T) {
	src := newChanSource()
	c := newCollector()
	consumer := ConsumerFunc(func(ev event.Event) {
		if ev.Window == 1 {
			panic("bad rule")
		}
		c.ProcessEvent(ev)
	})
	m := startMonitor(t, Config{Source: src}, consumer)

	src.in <- Signal{Kind: event.WindowCreated, Window: 1}
	src.in <- Signal{Kind: event.WindowCreated, Window: 2}

	assert.Equal(t, platform.WindowID(2), c.next(t).Window)
	assert.True(t, m.IsRunning())
	assert.Equal(t, uint64(2), m.Status().Delivered)
}

func TestStatus_ReportsPollInterval(t *testing.T) {
	p := NewPoller(PollerConfig{Windows: &scriptedWindows{}, Interval: 5 * time.Second})
	m := New(Config{Source: p})
	st := m.Status()
	assert.Equal(t, 5*time.Second, st.PollInterval)
	assert.Equal(t, DefaultCoalesceWindow, st.CoalesceWindow)
	assert.False(t, st.Running)
}

// closingSource hands out channels the test can close to simulate a lost
// connection, and remembers the context of every subscription.
type closingSource struct {
	mu   sync.Mutex
	ctxs []context.Context
	outs []chan Signal
}

func (s *closingSource) Subscribe(ctx context.Context) (<-chan Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(chan Signal)
	s.ctxs = append(s.ctxs, ctx)
	s.outs = append(s.outs, out)
	return out, nil
}

func (s *closingSource) closeLatest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.outs[len(s.outs)-1])
}

func (s *closingSource) ctx(i int) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctxs[i]
}

func TestSourceClosed_ReportedAndRestartReleasesOldRun(t *testing.T) {
	src := &closingSource{}
	m := startMonitor(t, Config{Source: src}, newCollector())

	src.closeLatest()
	require.Eventually(t, func() bool { return !m.IsRunning() }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.Status().SourceLost)
	assert.NoError(t, src.ctx(0).Err())

	require.NoError(t, m.Start(context.Background(), newCollector()))
	assert.ErrorIs(t, src.ctx(0).Err(), context.Canceled)
	assert.NoError(t, src.ctx(1).Err())
	assert.True(t, m.IsRunning())
	assert.False(t, m.Status().SourceLost)

	m.Stop()
	assert.ErrorIs(t, src.ctx(1).Err(), context.Canceled)
}
