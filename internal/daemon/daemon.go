package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/action"
	"github.com/1broseidon/winrules/internal/config"
	"github.com/1broseidon/winrules/internal/engine"
	"github.com/1broseidon/winrules/internal/ipc"
	"github.com/1broseidon/winrules/internal/metrics"
	"github.com/1broseidon/winrules/internal/monitor"
	"github.com/1broseidon/winrules/internal/platform"
	"github.com/1broseidon/winrules/internal/procs"
	"github.com/1broseidon/winrules/internal/rules"
)

// ErrNoRules is returned by Initialize when the configuration defines no rules.
var ErrNoRules = errors.New("no rules configured")

// ProcessTable lists, names and terminates processes. *procs.Table satisfies it.
type ProcessTable interface {
	PIDs(ctx context.Context) ([]int, error)
	Name(pid int) (string, error)
	Terminate(pid int) error
}

// eventLoop is implemented by backends that can push change notifications.
type eventLoop interface {
	OnClientListChange(fn func()) error
	EventLoop()
	StopEventLoop()
}

// Options configures a Daemon.
type Options struct {
	// ConfigPath is re-read on reload. Empty disables reload from disk.
	ConfigPath string
	Config     *config.Config
	Backend    platform.Backend
	Processes  ProcessTable
	// Source overrides the default polling source.
	Source monitor.Source
	Logger *zap.Logger
}

// Daemon wires the monitor, engine and executor together and owns their
// lifecycle. It also serves the IPC surface.
type Daemon struct {
	path     string
	backend  platform.Backend
	procs    ProcessTable
	resolver *procs.Resolver
	poller   *monitor.Poller
	source   monitor.Source
	logger   *zap.Logger

	cfgMu sync.RWMutex
	cfg   *config.Config

	// lifecycle serializes Initialize, Start and Stop.
	lifecycle sync.Mutex
	server    *ipc.Server
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// stateMu guards the fields below for readers; writers also hold lifecycle.
	stateMu   sync.RWMutex
	engine    *engine.Engine
	monitor   *monitor.Monitor
	running   bool
	startedAt time.Time

	// swapMu serializes rule set replacement from reload and toggles.
	swapMu sync.Mutex

	reloadMu      sync.Mutex
	lastReload    time.Time
	lastReloadErr string
}

var _ ipc.Daemon = (*Daemon)(nil)

// New creates a daemon. Call Initialize before Start.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if opts.Processes == nil {
		return nil, errors.New("process table is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Daemon{
		path:     opts.ConfigPath,
		backend:  opts.Backend,
		procs:    opts.Processes,
		resolver: procs.NewResolver(opts.Processes, procs.DefaultTTL),
		source:   opts.Source,
		logger:   logger,
		cfg:      opts.Config,
	}
	if d.source == nil {
		d.poller = monitor.NewPoller(monitor.PollerConfig{
			Windows:   opts.Backend,
			Processes: opts.Processes,
			Interval:  opts.Config.PollInterval,
			Logger:    logger.Named("poller"),
		})
		d.source = d.poller
	}
	return d, nil
}

// Initialize compiles the rules, seeds the window state and prepares the
// monitor. A configuration without rules is fatal. Once it has succeeded,
// further calls are no-ops; use Reload to pick up new rules.
func (d *Daemon) Initialize() error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	return d.initialize()
}

func (d *Daemon) initialize() error {
	if eng, _ := d.parts(); eng != nil {
		return nil
	}
	cfg := d.config()

	store, warnings, err := config.BuildStore(cfg)
	if err != nil {
		return fmt.Errorf("compile rules: %w", err)
	}
	d.logWarnings(warnings)
	if store.Len() == 0 {
		return ErrNoRules
	}

	var recorder engine.Recorder
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		recorder = metrics.Recorder{}
	}

	eng, err := engine.New(store, engine.Config{
		Logger:   d.logger.Named("engine"),
		Executor: action.NewExecutor(d.backend, d.backend, d.procs),
		Recorder: recorder,
	})
	if err != nil {
		return err
	}

	seed, err := d.backend.ListWindows()
	if err != nil {
		d.logger.Warn("initial window enumeration failed", zap.Error(err))
	}
	displays, err := d.backend.Displays()
	if err != nil {
		d.logger.Warn("display enumeration failed", zap.Error(err))
	}
	eng.Initialize(seed, displays)
	eng.SetProcessNames(d.resolver.Name)

	coalesce := cfg.CoalesceWindow
	if coalesce == 0 {
		coalesce = -1
	}
	mon := monitor.New(monitor.Config{
		Source:         d.source,
		Names:          d.resolver,
		Displays:       d.backend,
		CoalesceWindow: coalesce,
		Logger:         d.logger.Named("monitor"),
	})
	if err := mon.Initialize(); err != nil {
		return err
	}

	d.stateMu.Lock()
	d.engine = eng
	d.monitor = mon
	d.stateMu.Unlock()
	d.markReload(nil)
	return nil
}

// Start begins capture and rule evaluation, then brings up the optional
// surfaces. It fails when the event subscription cannot be established.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.running {
		return monitor.ErrAlreadyRunning
	}
	if err := d.initialize(); err != nil {
		return err
	}
	cfg := d.config()

	runCtx, cancel := context.WithCancel(ctx)

	d.engine.Start()
	if err := d.monitor.Start(runCtx, d.engine); err != nil {
		d.engine.Stop()
		cancel()
		return fmt.Errorf("start event monitor: %w", err)
	}

	if loop, ok := d.backend.(eventLoop); ok && d.poller != nil {
		if err := loop.OnClientListChange(d.poller.Wake); err != nil {
			d.logger.Warn("root window notifications unavailable; polling only", zap.Error(err))
		} else {
			d.goRun(func() { loop.EventLoop() })
		}
	}

	if cfg.IPC.Enabled {
		srv, err := ipc.NewServer(d, d.logger.Named("ipc"))
		if err == nil {
			err = srv.Start()
		}
		if err != nil {
			d.logger.Error("IPC server unavailable", zap.Error(err))
		} else {
			d.server = srv
		}
	}

	if cfg.Metrics.Enabled {
		listen := cfg.Metrics.Listen
		d.goRun(func() {
			if err := metrics.Serve(runCtx, listen, d.logger.Named("metrics")); err != nil {
				d.logger.Error("metrics listener failed", zap.Error(err))
			}
		})
	}

	if cfg.WatchConfig && d.path != "" {
		if err := d.startWatcher(runCtx); err != nil {
			d.logger.Warn("config watching disabled", zap.Error(err))
		}
	}

	rec := NewReconciler(ReconcilerConfig{Logger: d.logger.Named("reconciler")}, d.resolver, d.engine)
	d.goRun(func() { rec.Run(runCtx) })

	d.cancel = cancel
	d.stateMu.Lock()
	d.running = true
	d.startedAt = time.Now()
	d.stateMu.Unlock()
	d.logger.Info("daemon started",
		zap.Int("rules", d.engine.Store().Len()),
		zap.Int("enabled_rules", d.engine.Store().EnabledCount()),
		zap.String("config", d.path))
	return nil
}

// Stop halts capture first so that no delivery is in flight, then the
// engine and the auxiliary goroutines. Stopping a stopped daemon is a no-op.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if !d.running {
		return
	}
	d.monitor.Stop()
	d.engine.Stop()

	if d.server != nil {
		d.server.Stop()
		d.server = nil
	}
	if loop, ok := d.backend.(eventLoop); ok && d.poller != nil {
		loop.StopEventLoop()
	}
	d.cancel()
	d.wg.Wait()

	d.stateMu.Lock()
	d.running = false
	d.stateMu.Unlock()
	stats := d.engine.Statistics()
	d.logger.Info("daemon stopped",
		zap.Uint64("events_processed", stats.TotalEventsProcessed),
		zap.Duration("uptime", time.Since(d.startedAt)))
}

// IsRunning reports whether the daemon has been started and not stopped and
// its monitor is still capturing.
func (d *Daemon) IsRunning() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.running && d.monitor.IsRunning()
}

func (d *Daemon) parts() (*engine.Engine, *monitor.Monitor) {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.engine, d.monitor
}

// Reload re-reads the config file and swaps in the new rule set. On failure
// the current rules stay in effect.
func (d *Daemon) Reload() (ipc.ReloadData, error) {
	if d.path == "" {
		return ipc.ReloadData{}, errors.New("daemon was started without a config file")
	}
	eng, _ := d.parts()
	if eng == nil {
		return ipc.ReloadData{}, errors.New("daemon is not initialized")
	}
	d.swapMu.Lock()
	defer d.swapMu.Unlock()

	cfg, store, warnings, err := config.LoadStore(d.path)
	if err == nil && store.Len() == 0 {
		err = ErrNoRules
	}
	if err == nil {
		err = eng.ReplaceStore(store)
	}
	d.markReload(err)
	metrics.RecordReload(err == nil)
	if err != nil {
		d.logger.Error("reload failed; keeping current rules", zap.Error(err))
		return ipc.ReloadData{}, err
	}

	d.cfgMu.Lock()
	next := *d.cfg
	next.Rules = cfg.Rules
	d.cfg = &next
	d.cfgMu.Unlock()

	d.logWarnings(warnings)
	d.logger.Info("rules reloaded", zap.Int("rules", store.Len()), zap.Int("enabled", store.EnabledCount()))
	return ipc.ReloadData{Rules: store.Len(), Enabled: store.EnabledCount(), Warnings: warnings}, nil
}

// SetRuleEnabled installs a copy of the current rules with one rule toggled.
func (d *Daemon) SetRuleEnabled(name string, enabled bool) error {
	eng, _ := d.parts()
	if eng == nil {
		return errors.New("daemon is not initialized")
	}
	d.swapMu.Lock()
	defer d.swapMu.Unlock()

	next, err := eng.Store().WithEnabled(name, enabled)
	if err != nil {
		return err
	}
	return eng.ReplaceStore(next)
}

// Status reports lifecycle state and monitor counters.
func (d *Daemon) Status() ipc.StatusData {
	d.stateMu.RLock()
	running := d.running
	startedAt := d.startedAt
	eng, mon := d.engine, d.monitor
	d.stateMu.RUnlock()

	st := ipc.StatusData{
		DaemonRunning: running,
		ConfigPath:    d.path,
	}
	if running {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	if eng != nil {
		store := eng.Store()
		st.EngineRunning = eng.IsRunning()
		st.RuleCount = store.Len()
		st.EnabledRules = store.EnabledCount()
		st.WindowsTracked = eng.Statistics().CurrentWindowsTracked
	}
	if mon != nil {
		ms := mon.Status()
		st.MonitorRunning = ms.Running
		st.PollInterval = ms.PollInterval
		st.CoalesceWindow = ms.CoalesceWindow
		st.EventsDelivered = ms.Delivered
		st.EventsCoalesced = ms.Coalesced
		if running && ms.SourceLost {
			st.DaemonRunning = false
			st.MonitorError = "event source closed; restart the daemon"
		}
	}

	d.reloadMu.Lock()
	st.LastReload = d.lastReload
	st.LastReloadError = d.lastReloadErr
	d.reloadMu.Unlock()
	return st
}

func (d *Daemon) Statistics() engine.Statistics {
	eng, _ := d.parts()
	if eng == nil {
		return engine.Statistics{}
	}
	return eng.Statistics()
}

func (d *Daemon) ClearStatistics() {
	if eng, _ := d.parts(); eng != nil {
		eng.ClearStatistics()
	}
}

func (d *Daemon) Windows() []engine.Window {
	eng, _ := d.parts()
	if eng == nil {
		return nil
	}
	return eng.Windows()
}

// Rules lists the active rules in evaluation order with their counters.
func (d *Daemon) Rules() []ipc.RuleInfo {
	eng, _ := d.parts()
	if eng == nil {
		return nil
	}
	stats := eng.Statistics()
	rs := eng.Store().Rules()
	out := make([]ipc.RuleInfo, 0, len(rs))
	for _, r := range rs {
		out = append(out, ruleInfo(r, stats))
	}
	return out
}

func ruleInfo(r rules.Rule, stats engine.Statistics) ipc.RuleInfo {
	events := make([]string, 0, len(r.Events))
	for _, k := range r.Events {
		events = append(events, k.String())
	}
	return ipc.RuleInfo{
		Name:        r.Name,
		Description: r.Description,
		Enabled:     r.Enabled,
		Priority:    r.Priority,
		Events:      events,
		Conditions:  r.Conditions,
		Actions:     r.Actions,
		Executions:  stats.RuleExecutionCounts[r.Name],
		Failures:    stats.ActionFailures[r.Name],
	}
}

func (d *Daemon) config() *config.Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

func (d *Daemon) markReload(err error) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	d.lastReload = time.Now()
	d.lastReloadErr = ""
	if err != nil {
		d.lastReloadErr = err.Error()
	}
}

func (d *Daemon) logWarnings(warnings []string) {
	for _, w := range warnings {
		d.logger.Warn("rule warning", zap.String("detail", w))
	}
}

func (d *Daemon) goRun(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}
