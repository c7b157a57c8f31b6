package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/engine"
)

// NameCache is the process-name cache the reconciler maintains.
type NameCache interface {
	Prune() int
	Stats() (hits, misses uint64, size int)
}

// StatisticsSource reports engine counters.
type StatisticsSource interface {
	Statistics() engine.Statistics
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Reconciler periodically drops expired process names and logs a summary of
// the engine's counters.
type Reconciler struct {
	interval time.Duration
	names    NameCache
	stats    StatisticsSource
	logger   *zap.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, names NameCache, stats StatisticsSource) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		interval: interval,
		names:    names,
		stats:    stats,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("reconciler started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile() int {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", zap.Any("error", err))
		}
	}()

	pruned := r.names.Prune()
	hits, misses, size := r.names.Stats()

	fields := []zap.Field{
		zap.Int("names_pruned", pruned),
		zap.Int("names_cached", size),
		zap.Uint64("name_hits", hits),
		zap.Uint64("name_misses", misses),
	}
	if r.stats != nil {
		s := r.stats.Statistics()
		fields = append(fields,
			zap.Uint64("events_processed", s.TotalEventsProcessed),
			zap.Int("windows_tracked", s.CurrentWindowsTracked))
	}
	r.logger.Debug("reconcile pass", fields...)
	return pruned
}

// ReconcileNow triggers an immediate reconciliation pass and returns the
// number of cache entries dropped.
func (r *Reconciler) ReconcileNow() int {
	return r.reconcile()
}
