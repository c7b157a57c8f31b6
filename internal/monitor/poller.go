package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/event"
	"github.com/1broseidon/winrules/internal/platform"
)

const (
	DefaultPollInterval = time.Second
	MinPollInterval     = 100 * time.Millisecond
	MaxPollInterval     = 60 * time.Second
	defaultBuffer       = 64
)

// ClampInterval limits d to [MinPollInterval, MaxPollInterval]; zero or
// negative yields DefaultPollInterval.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultPollInterval
	case d < MinPollInterval:
		return MinPollInterval
	case d > MaxPollInterval:
		return MaxPollInterval
	}
	return d
}

// WindowLister enumerates top-level windows.
type WindowLister interface {
	ListWindows() ([]platform.Window, error)
	ActiveWindow() (platform.WindowID, error)
}

// ProcessLister enumerates running process IDs.
type ProcessLister interface {
	PIDs(ctx context.Context) ([]int, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Windows   WindowLister
	Processes ProcessLister // optional
	Interval  time.Duration
	// Buffer is the signal channel capacity. A full channel blocks the
	// poller rather than growing.
	Buffer int
	Logger *zap.Logger
}

// Poller is a Source that diffs successive snapshots of the window list,
// the active window and the process table.
type Poller struct {
	windows   WindowLister
	processes ProcessLister
	interval  time.Duration
	buffer    int
	logger    *zap.Logger
	wake      chan struct{}
	done      chan struct{} // closed when the previous loop exits

	known  map[platform.WindowID]platform.Window
	active platform.WindowID
	pids   map[int]struct{}
}

var _ Source = (*Poller)(nil)

// NewPoller creates a polling source.
func NewPoller(cfg PollerConfig) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Poller{
		windows:   cfg.Windows,
		processes: cfg.Processes,
		interval:  ClampInterval(cfg.Interval),
		buffer:    buffer,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}
}

// Interval returns the effective polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Wake requests an immediate poll. It never blocks.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Subscribe takes a baseline snapshot and then streams changes. Windows and
// processes present in the baseline produce no signals.
func (p *Poller) Subscribe(ctx context.Context) (<-chan Signal, error) {
	if p.windows == nil {
		return nil, fmt.Errorf("poller has no window lister")
	}
	if p.done != nil {
		<-p.done
	}
	windows, err := p.windows.ListWindows()
	if err != nil {
		return nil, fmt.Errorf("initial window snapshot: %w", err)
	}
	p.known = make(map[platform.WindowID]platform.Window, len(windows))
	for _, w := range windows {
		p.known[w.ID] = w
	}
	p.active, _ = p.windows.ActiveWindow()

	p.pids = nil
	if p.processes != nil {
		pids, err := p.processes.PIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("initial process snapshot: %w", err)
		}
		p.pids = pidSet(pids)
	}

	out := make(chan Signal, p.buffer)
	done := make(chan struct{})
	p.done = done
	go p.loop(ctx, out, done)
	return out, nil
}

func (p *Poller) loop(ctx context.Context, out chan<- Signal, done chan struct{}) {
	defer close(done)
	defer close(out)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started", zap.Duration("interval", p.interval), zap.Int("windows", len(p.known)))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
		case <-p.wake:
		}
		if !p.poll(ctx, out) {
			return
		}
	}
}

// poll emits the changes since the previous snapshot. It returns false when
// ctx was cancelled while sending.
func (p *Poller) poll(ctx context.Context, out chan<- Signal) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poller panic recovered", zap.Any("panic", r))
			ok = ctx.Err() == nil
		}
	}()

	var batch []Signal
	batch = append(batch, p.diffWindows()...)
	batch = append(batch, p.diffProcesses(ctx)...)

	for _, sig := range batch {
		select {
		case out <- sig:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (p *Poller) diffWindows() []Signal {
	windows, err := p.windows.ListWindows()
	if err != nil {
		p.logger.Warn("window snapshot failed", zap.Error(err))
		return nil
	}
	now := time.Now()

	current := make(map[platform.WindowID]platform.Window, len(windows))
	for _, w := range windows {
		current[w.ID] = w
	}

	var out []Signal
	for _, id := range sortedIDs(p.known) {
		if _, ok := current[id]; !ok {
			out = append(out, windowSignal(event.WindowDestroyed, p.known[id], now))
		}
	}
	for _, w := range windows {
		prev, seen := p.known[w.ID]
		switch {
		case !seen:
			out = append(out, windowSignal(event.WindowCreated, w, now))
		case prev.Bounds != w.Bounds:
			out = append(out, windowSignal(event.WindowMoved, w, now))
		}
	}

	if active, err := p.windows.ActiveWindow(); err == nil && active != 0 && active != p.active {
		p.active = active
		if w, ok := current[active]; ok {
			out = append(out, windowSignal(event.WindowActivated, w, now))
		} else {
			out = append(out, Signal{Kind: event.WindowActivated, Window: active, At: now})
		}
	}

	p.known = current
	return out
}

func (p *Poller) diffProcesses(ctx context.Context) []Signal {
	if p.processes == nil {
		return nil
	}
	pids, err := p.processes.PIDs(ctx)
	if err != nil {
		p.logger.Warn("process snapshot failed", zap.Error(err))
		return nil
	}
	now := time.Now()
	current := pidSet(pids)

	var out []Signal
	for _, pid := range sortedPIDs(p.pids) {
		if _, ok := current[pid]; !ok {
			out = append(out, Signal{Kind: event.ProcessStopped, PID: pid, At: now})
		}
	}
	for _, pid := range pids {
		if _, ok := p.pids[pid]; !ok {
			out = append(out, Signal{Kind: event.ProcessStarted, PID: pid, At: now})
		}
	}
	p.pids = current
	return out
}

func windowSignal(kind event.Kind, w platform.Window, at time.Time) Signal {
	return Signal{
		Kind:   kind,
		Window: w.ID,
		PID:    w.PID,
		Title:  w.Title,
		Class:  w.Class,
		Bounds: w.Bounds,
		At:     at,
	}
}

func pidSet(pids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(pids))
	for _, pid := range pids {
		set[pid] = struct{}{}
	}
	return set
}

func sortedPIDs(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for pid := range set {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

func sortedIDs(m map[platform.WindowID]platform.Window) []platform.WindowID {
	out := make([]platform.WindowID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
