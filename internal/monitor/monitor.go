package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/event"
	"github.com/1broseidon/winrules/internal/platform"
)

var (
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrNoSource       = errors.New("monitor has no event source")
)

const (
	// DefaultCoalesceWindow bounds the delay added to window-move delivery.
	DefaultCoalesceWindow = 50 * time.Millisecond
	displayRefresh        = 2 * time.Second
)

// Config holds the monitor's collaborators.
type Config struct {
	Source   Source
	Names    NameResolver  // optional
	Displays DisplayLookup // optional
	// CoalesceWindow is the longest a move notification is held back.
	// Zero uses DefaultCoalesceWindow; negative disables coalescing.
	CoalesceWindow time.Duration
	Logger         *zap.Logger
}

// Status describes the monitor for status queries.
type Status struct {
	Running        bool          `json:"running"`
	Delivered      uint64        `json:"delivered"`
	Coalesced      uint64        `json:"coalesced"`
	CoalesceWindow time.Duration `json:"coalesce_window"`
	PollInterval   time.Duration `json:"poll_interval,omitempty"`
	// SourceLost is set when the source closed while the monitor was running.
	SourceLost bool `json:"source_lost,omitempty"`
}

// Monitor turns a Source's raw signals into events and hands them to a
// single consumer, one at a time, in capture order.
type Monitor struct {
	source   Source
	names    NameResolver
	displays DisplayLookup
	coalesce time.Duration
	logger   *zap.Logger

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	running     atomic.Bool
	sourceLost  atomic.Bool
	initialized atomic.Bool
	delivered   atomic.Uint64
	coalesced   atomic.Uint64

	displayCache []platform.Display
	displayAt    time.Time
}

// New creates a monitor. Call Initialize before Start.
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	coalesce := cfg.CoalesceWindow
	if coalesce == 0 {
		coalesce = DefaultCoalesceWindow
	}
	return &Monitor{
		source:   cfg.Source,
		names:    cfg.Names,
		displays: cfg.Displays,
		coalesce: coalesce,
		logger:   logger,
	}
}

// Initialize checks the monitor's collaborators. It is safe to call twice.
func (m *Monitor) Initialize() error {
	if m.source == nil {
		return ErrNoSource
	}
	m.initialized.Store(true)
	return nil
}

// Start subscribes to the source and begins delivering events to consumer.
// It fails with ErrAlreadyRunning when called twice without Stop, and
// returns the subscription error when the source cannot be established.
func (m *Monitor) Start(ctx context.Context, consumer Consumer) error {
	if consumer == nil {
		return errors.New("consumer is required")
	}
	if !m.initialized.Load() {
		if err := m.Initialize(); err != nil {
			return err
		}
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.running.Load() {
		return ErrAlreadyRunning
	}
	if m.cancel != nil {
		// previous run ended because its source closed
		m.cancel()
		<-m.done
		m.cancel = nil
		m.done = nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	signals, err := m.source.Subscribe(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to event source: %w", err)
	}

	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.sourceLost.Store(false)
	m.running.Store(true)

	go m.run(runCtx, signals, consumer, done)

	m.logger.Info("event monitor started", zap.Duration("coalesce_window", m.coalesce))
	return nil
}

// Stop ends capture and returns only after any in-flight delivery has
// finished; the consumer is never called after Stop returns. Stopping a
// stopped monitor is a no-op. Stop must not be called from the consumer.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.running.Store(false)

	m.logger.Info("event monitor stopped", zap.Uint64("delivered", m.delivered.Load()))
}

// IsRunning reports whether the monitor is capturing.
func (m *Monitor) IsRunning() bool {
	return m.running.Load()
}

// Status returns counters and settings for status queries.
func (m *Monitor) Status() Status {
	s := Status{
		Running:        m.running.Load(),
		SourceLost:     m.sourceLost.Load(),
		Delivered:      m.delivered.Load(),
		Coalesced:      m.coalesced.Load(),
		CoalesceWindow: m.coalesce,
	}
	if p, ok := m.source.(interface{ Interval() time.Duration }); ok {
		s.PollInterval = p.Interval()
	}
	return s
}

// run owns delivery. Pending moves are flushed before any other signal so
// that coalescing never reorders kinds.
func (m *Monitor) run(ctx context.Context, signals <-chan Signal, consumer Consumer, done chan struct{}) {
	defer close(done)

	var (
		pending []Signal
		index   = make(map[platform.WindowID]int)
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
		for _, sig := range pending {
			m.deliver(consumer, sig)
		}
		pending = pending[:0]
		clear(index)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case sig, ok := <-signals:
			if !ok {
				flush()
				if ctx.Err() == nil {
					m.logger.Error("event source closed unexpectedly")
					m.sourceLost.Store(true)
					m.running.Store(false)
				}
				return
			}
			if sig.Kind == event.WindowMoved && m.coalesce > 0 {
				if i, seen := index[sig.Window]; seen {
					pending[i] = sig
					m.coalesced.Add(1)
				} else {
					index[sig.Window] = len(pending)
					pending = append(pending, sig)
				}
				if timerC == nil {
					timer = time.NewTimer(m.coalesce)
					timerC = timer.C
				}
				continue
			}
			flush()
			m.deliver(consumer, sig)
		case <-timerC:
			timer = nil
			timerC = nil
			flush()
		}
	}
}

func (m *Monitor) deliver(consumer Consumer, sig Signal) {
	ev := m.normalize(sig)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("consumer panic recovered",
				zap.Stringer("kind", ev.Kind),
				zap.Uint32("window_id", uint32(ev.Window)),
				zap.Any("panic", r))
		}
	}()
	m.delivered.Add(1)
	consumer.ProcessEvent(ev)
}

// normalize fills in the fields a signal leaves unresolved. A field that
// cannot be resolved is left empty; the event is never dropped.
func (m *Monitor) normalize(sig Signal) event.Event {
	ev := event.Event{
		Kind:        sig.Kind,
		Window:      sig.Window,
		PID:         sig.PID,
		ProcessName: sig.ProcessName,
		Title:       sig.Title,
		WindowClass: sig.Class,
		Bounds:      sig.Bounds,
		Monitor:     event.NoMonitor,
		Time:        sig.At,
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.ProcessName == "" && ev.PID > 0 && m.names != nil {
		ev.ProcessName = m.names.Name(ev.PID)
	}
	if sig.Kind == event.ProcessStopped {
		if f, ok := m.names.(interface{ Forget(pid int) }); ok {
			f.Forget(sig.PID)
		}
	}
	if !ev.Bounds.Empty() {
		ev.Monitor = platform.DisplayIndexAt(m.currentDisplays(), ev.Bounds)
	}
	return ev
}

// currentDisplays is only called from the delivery goroutine.
func (m *Monitor) currentDisplays() []platform.Display {
	if m.displays == nil {
		return nil
	}
	if m.displayCache != nil && time.Since(m.displayAt) < displayRefresh {
		return m.displayCache
	}
	displays, err := m.displays.Displays()
	if err != nil {
		m.logger.Debug("display lookup failed", zap.Error(err))
		return m.displayCache
	}
	m.displayCache = displays
	m.displayAt = time.Now()
	return displays
}
