package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/event"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	eventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "winrules",
			Subsystem: "engine",
			Name:      "events_processed_total",
			Help:      "Number of events handed to the rule engine.",
		}, []string{"kind"},
	)
	ruleExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "winrules",
			Subsystem: "engine",
			Name:      "rule_executions_total",
			Help:      "Number of times a rule matched and its actions were run.",
		}, []string{"rule"},
	)
	actionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "winrules",
			Subsystem: "engine",
			Name:      "action_outcomes_total",
			Help:      "Action results by rule, action type and outcome.",
		}, []string{"rule", "action", "result"},
	)
	windowsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "winrules",
			Subsystem: "engine",
			Name:      "windows_tracked",
			Help:      "Windows currently held in the engine's window state.",
		},
	)
	enabledRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "winrules",
			Subsystem: "engine",
			Name:      "enabled_rules",
			Help:      "Enabled rules in the active rule set.",
		},
	)
	reloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "winrules",
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Rule set reload attempts by result.",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{eventsProcessed, ruleExecutions, actionOutcomes, windowsTracked, enabledRules, reloads}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RecordReload counts a reload attempt.
func RecordReload(ok bool) {
	if regOK.Load() {
		reloads.WithLabelValues(result(ok)).Inc()
	}
}

// Recorder forwards engine outcomes to the package collectors. The zero
// value is ready to use; it no-ops until Register has been called.
type Recorder struct{}

func (Recorder) EventProcessed(kind event.Kind) {
	if regOK.Load() {
		eventsProcessed.WithLabelValues(kind.String()).Inc()
	}
}

func (Recorder) RuleExecuted(rule string) {
	if regOK.Load() {
		ruleExecutions.WithLabelValues(rule).Inc()
	}
}

func (Recorder) ActionOutcome(rule, actionType string, ok bool) {
	if regOK.Load() {
		actionOutcomes.WithLabelValues(rule, actionType, result(ok)).Inc()
	}
}

func (Recorder) WindowsTracked(n int) {
	if regOK.Load() {
		windowsTracked.Set(float64(n))
	}
}

func (Recorder) EnabledRules(n int) {
	if regOK.Load() {
		enabledRules.Set(float64(n))
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
