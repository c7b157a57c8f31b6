package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/action"
	"github.com/1broseidon/winrules/internal/event"
	"github.com/1broseidon/winrules/internal/platform"
	"github.com/1broseidon/winrules/internal/rules"
)

// Executor applies a single action. *action.Executor satisfies it.
type Executor interface {
	Execute(t action.Target, spec rules.ActionSpec) action.Result
}

// Recorder receives processing outcomes, typically for metrics export.
type Recorder interface {
	EventProcessed(kind event.Kind)
	RuleExecuted(rule string)
	ActionOutcome(rule, actionType string, ok bool)
	WindowsTracked(n int)
	EnabledRules(n int)
}

// Window is the engine's view of one known window.
type Window struct {
	Handle      platform.WindowID `json:"handle"`
	PID         int               `json:"pid,omitempty"`
	ProcessName string            `json:"process_name,omitempty"`
	Title       string            `json:"title"`
	Class       string            `json:"class,omitempty"`
	Monitor     int               `json:"monitor_index"`
	Bounds      platform.Rect     `json:"bounds"`
	FirstSeen   time.Time         `json:"first_seen"`
	LastUpdated time.Time         `json:"last_updated"`
}

func (w Window) subject() rules.Subject {
	return rules.Subject{
		ProcessName: w.ProcessName,
		Title:       w.Title,
		WindowClass: w.Class,
		Monitor:     w.Monitor,
	}
}

// Statistics is a point-in-time copy of the engine counters.
type Statistics struct {
	TotalEventsProcessed  uint64            `json:"total_events_processed"`
	CurrentWindowsTracked int               `json:"current_windows_tracked"`
	EnabledRules          int               `json:"enabled_rules"`
	RuleExecutionCounts   map[string]uint64 `json:"rule_execution_counts"`
	ActionFailures        map[string]uint64 `json:"action_failures"`
	StartedAt             time.Time         `json:"started_at"`
}

// Config holds the engine's collaborators.
type Config struct {
	Logger   *zap.Logger
	Executor Executor
	Recorder Recorder
}

// Engine evaluates rules against events and applies matching actions.
//
// ProcessEvent must not be called concurrently with itself; the monitor's
// one-at-a-time delivery provides that. Every other method is safe to call
// from any goroutine.
type Engine struct {
	logger *zap.Logger
	exec   Executor
	rec    Recorder

	store   atomic.Pointer[rules.Store]
	running atomic.Bool

	mu         sync.Mutex
	windows    map[platform.WindowID]Window
	total      uint64
	execCounts map[string]uint64
	failures   map[string]uint64
	startedAt  time.Time
}

// New creates an engine evaluating store.
func New(store *rules.Store, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errors.New("rule store is nil")
	}
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := cfg.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}

	e := &Engine{
		logger:     logger,
		exec:       cfg.Executor,
		rec:        rec,
		windows:    make(map[platform.WindowID]Window),
		execCounts: make(map[string]uint64),
		failures:   make(map[string]uint64),
	}
	e.store.Store(store)
	rec.EnabledRules(store.EnabledCount())
	return e, nil
}

// Initialize replaces the window state with seed, typically the windows
// enumerated at startup.
func (e *Engine) Initialize(seed []platform.Window, displays []platform.Display) {
	now := time.Now()
	windows := make(map[platform.WindowID]Window, len(seed))
	for _, w := range seed {
		windows[w.ID] = Window{
			Handle:      w.ID,
			PID:         w.PID,
			Title:       w.Title,
			Class:       w.Class,
			Monitor:     platform.DisplayIndexAt(displays, w.Bounds),
			Bounds:      w.Bounds,
			FirstSeen:   now,
			LastUpdated: now,
		}
	}

	e.mu.Lock()
	e.windows = windows
	n := len(windows)
	e.mu.Unlock()

	e.rec.WindowsTracked(n)
	e.logger.Info("window state initialized", zap.Int("windows", n))
}

// SetProcessNames fills in process names for seeded windows.
func (e *Engine) SetProcessNames(resolve func(pid int) string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, w := range e.windows {
		if w.ProcessName == "" && w.PID > 0 {
			w.ProcessName = resolve(w.PID)
			e.windows[id] = w
		}
	}
}

// Start enables rule evaluation. Calling it again is a no-op.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()
	e.logger.Info("rule engine started", zap.Int("rules", e.store.Load().Len()))
}

// Stop disables rule evaluation. Events are still counted and tracked.
func (e *Engine) Stop() {
	if e.running.CompareAndSwap(true, false) {
		e.logger.Info("rule engine stopped")
	}
}

// IsRunning reports whether rules are being evaluated.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Store returns the rule store currently in effect.
func (e *Engine) Store() *rules.Store {
	return e.store.Load()
}

// ReplaceStore swaps the rule store. An evaluation already in progress
// finishes against the store it started with.
func (e *Engine) ReplaceStore(s *rules.Store) error {
	if s == nil {
		return errors.New("rule store is nil")
	}
	old := e.store.Swap(s)
	e.rec.EnabledRules(s.EnabledCount())
	e.logger.Info("rule store replaced",
		zap.Int("previous_rules", old.Len()),
		zap.Int("rules", s.Len()),
		zap.Int("enabled_rules", s.EnabledCount()))
	return nil
}

// ProcessEvent is the single entry point for captured events. It never
// panics and never returns an error; failures are logged and counted.
func (e *Engine) ProcessEvent(ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event processing panic recovered",
				zap.Stringer("kind", ev.Kind),
				zap.Uint32("window_id", uint32(ev.Window)),
				zap.Any("panic", r))
		}
	}()

	store := e.store.Load()
	subject, target := e.track(ev)
	e.rec.EventProcessed(ev.Kind)

	if !e.running.Load() {
		return
	}

	for _, r := range store.Rules() {
		if !r.Enabled {
			continue
		}
		if !rules.Matches(r, ev.Kind, subject) {
			continue
		}
		e.execute(r, ev, target)
	}
}

func (e *Engine) execute(r rules.Rule, ev event.Event, target action.Target) {
	e.logger.Info("rule matched",
		zap.String("rule", r.Name),
		zap.Stringer("kind", ev.Kind),
		zap.Uint32("window_id", uint32(target.Window)),
		zap.String("process", target.ProcessName))

	var failed uint64
	for i, spec := range r.Actions {
		res := e.exec.Execute(target, spec)
		e.rec.ActionOutcome(r.Name, spec.Type, res.OK)
		fields := []zap.Field{
			zap.String("rule", r.Name),
			zap.String("action", spec.Type),
			zap.Int("index", i),
			zap.Uint32("window_id", uint32(target.Window)),
		}
		if res.OK {
			if res.Diagnostic != "" {
				fields = append(fields, zap.String("detail", res.Diagnostic))
			}
			e.logger.Info("action applied", fields...)
			continue
		}
		failed++
		e.logger.Warn("action failed", append(fields, zap.String("error", res.Diagnostic))...)
	}

	e.mu.Lock()
	e.execCounts[r.Name]++
	if failed > 0 {
		e.failures[r.Name] += failed
	}
	e.mu.Unlock()
	e.rec.RuleExecuted(r.Name)
}

// track counts ev and folds it into the window state, returning the subject
// for matching and the action target.
func (e *Engine) track(ev event.Event) (rules.Subject, action.Target) {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.total++

	transient := Window{
		Handle:      ev.Window,
		PID:         ev.PID,
		ProcessName: ev.ProcessName,
		Title:       ev.Title,
		Class:       ev.WindowClass,
		Monitor:     ev.Monitor,
		Bounds:      ev.Bounds,
		FirstSeen:   now,
		LastUpdated: now,
	}

	var w Window
	if ev.HasWindow() {
		existing, known := e.windows[ev.Window]
		switch ev.Kind {
		case event.WindowCreated:
			w = transient
			if known {
				w = merge(existing, ev, now)
			}
			e.windows[ev.Window] = w
		case event.WindowDestroyed:
			w = transient
			if known {
				w = merge(existing, ev, now)
				delete(e.windows, ev.Window)
			}
		default:
			w = transient
			if known {
				w = merge(existing, ev, now)
				e.windows[ev.Window] = w
			}
		}
		e.rec.WindowsTracked(len(e.windows))
	} else {
		w = transient
	}

	target := action.Target{
		Window:      w.Handle,
		PID:         w.PID,
		ProcessName: w.ProcessName,
	}
	if ev.HasWindow() {
		target.Peers = e.peersLocked(w)
		target.Duplicates = e.duplicatesLocked(w)
	}
	return rules.SubjectOf(ev, w.subject()), target
}

func (e *Engine) peersLocked(w Window) []platform.WindowID {
	if w.ProcessName == "" {
		return nil
	}
	var peers []platform.WindowID
	for id, other := range e.windows {
		if id != w.Handle && strings.EqualFold(other.ProcessName, w.ProcessName) {
			peers = append(peers, id)
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// duplicatesLocked returns tracked windows other than w that share its class
// and title and were seen no later than w, oldest first.
func (e *Engine) duplicatesLocked(w Window) []platform.WindowID {
	if w.Class == "" || w.Title == "" {
		return nil
	}
	var dups []Window
	for id, other := range e.windows {
		if id == w.Handle || other.Class != w.Class || other.Title != w.Title {
			continue
		}
		if other.FirstSeen.After(w.FirstSeen) {
			continue
		}
		dups = append(dups, other)
	}
	sort.Slice(dups, func(i, j int) bool {
		if !dups[i].FirstSeen.Equal(dups[j].FirstSeen) {
			return dups[i].FirstSeen.Before(dups[j].FirstSeen)
		}
		return dups[i].Handle < dups[j].Handle
	})
	out := make([]platform.WindowID, len(dups))
	for i, d := range dups {
		out[i] = d.Handle
	}
	return out
}

// merge refreshes a tracked window with the resolved fields of ev.
func merge(w Window, ev event.Event, now time.Time) Window {
	if ev.PID > 0 {
		w.PID = ev.PID
	}
	if ev.ProcessName != "" {
		w.ProcessName = ev.ProcessName
	}
	if ev.Title != "" {
		w.Title = ev.Title
	}
	if ev.WindowClass != "" {
		w.Class = ev.WindowClass
	}
	if ev.HasMonitor() {
		w.Monitor = ev.Monitor
	}
	if !ev.Bounds.Empty() {
		w.Bounds = ev.Bounds
	}
	w.LastUpdated = now
	return w
}

// Statistics returns a consistent snapshot of the counters.
func (e *Engine) Statistics() Statistics {
	enabled := e.store.Load().EnabledCount()

	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		TotalEventsProcessed:  e.total,
		CurrentWindowsTracked: len(e.windows),
		EnabledRules:          enabled,
		RuleExecutionCounts:   make(map[string]uint64, len(e.execCounts)),
		ActionFailures:        make(map[string]uint64, len(e.failures)),
		StartedAt:             e.startedAt,
	}
	for name, n := range e.execCounts {
		stats.RuleExecutionCounts[name] = n
	}
	for name, n := range e.failures {
		stats.ActionFailures[name] = n
	}
	return stats
}

// ClearStatistics resets the event and rule counters. Window state is kept.
func (e *Engine) ClearStatistics() {
	e.mu.Lock()
	e.total = 0
	e.execCounts = make(map[string]uint64)
	e.failures = make(map[string]uint64)
	e.mu.Unlock()
	e.logger.Info("statistics cleared")
}

// Windows returns the tracked windows ordered by handle.
func (e *Engine) Windows() []Window {
	e.mu.Lock()
	out := make([]Window, 0, len(e.windows))
	for _, w := range e.windows {
		out = append(out, w)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Window looks up a tracked window.
func (e *Engine) Window(id platform.WindowID) (Window, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.windows[id]
	return w, ok
}

func (s Statistics) String() string {
	return fmt.Sprintf("events=%d windows=%d enabled_rules=%d executions=%d",
		s.TotalEventsProcessed, s.CurrentWindowsTracked, s.EnabledRules, sum(s.RuleExecutionCounts))
}

func sum(m map[string]uint64) uint64 {
	var n uint64
	for _, v := range m {
		n += v
	}
	return n
}

type nopRecorder struct{}

func (nopRecorder) EventProcessed(event.Kind)          {}
func (nopRecorder) RuleExecuted(string)                {}
func (nopRecorder) ActionOutcome(string, string, bool) {}
func (nopRecorder) WindowsTracked(int)                 {}
func (nopRecorder) EnabledRules(int)                   {}
