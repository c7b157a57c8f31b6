package config

import (
	"fmt"

	"github.com/1broseidon/winrules/internal/rules"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BuildEffectiveConfig applies raw over the defaults.
func BuildEffectiveConfig(raw RawConfig) *Config {
	cfg := DefaultConfig()

	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	if raw.PollInterval != nil {
		cfg.PollInterval = *raw.PollInterval
	}
	if raw.CoalesceWindow != nil {
		cfg.CoalesceWindow = *raw.CoalesceWindow
	}
	if raw.WatchConfig != nil {
		cfg.WatchConfig = *raw.WatchConfig
	}

	if raw.Logging != nil {
		if raw.Logging.Format != nil {
			cfg.Logging.Format = *raw.Logging.Format
		}
		if raw.Logging.File != nil {
			cfg.Logging.File = *raw.Logging.File
		}
		if raw.Logging.MaxSizeMB != nil {
			cfg.Logging.MaxSizeMB = *raw.Logging.MaxSizeMB
		}
		if raw.Logging.MaxFiles != nil {
			cfg.Logging.MaxFiles = *raw.Logging.MaxFiles
		}
		if raw.Logging.MaxAgeDays != nil {
			cfg.Logging.MaxAgeDays = *raw.Logging.MaxAgeDays
		}
		if raw.Logging.Compress != nil {
			cfg.Logging.Compress = *raw.Logging.Compress
		}
	}

	if raw.Metrics != nil {
		if raw.Metrics.Enabled != nil {
			cfg.Metrics.Enabled = *raw.Metrics.Enabled
		}
		if raw.Metrics.Listen != nil {
			cfg.Metrics.Listen = *raw.Metrics.Listen
		}
	}

	if raw.IPC != nil && raw.IPC.Enabled != nil {
		cfg.IPC.Enabled = *raw.IPC.Enabled
	}

	cfg.Rules = make([]RuleConfig, 0, len(raw.Rules))
	for _, r := range raw.Rules {
		rc := RuleConfig{
			Name:       r.Name,
			Enabled:    true,
			Priority:   rules.DefaultPriority,
			Events:     r.Events,
			Conditions: r.Conditions,
			Actions:    r.Actions,
		}
		if r.Description != nil {
			rc.Description = *r.Description
		}
		if r.Enabled != nil {
			rc.Enabled = *r.Enabled
		}
		if r.Priority != nil {
			rc.Priority = *r.Priority
		}
		cfg.Rules = append(cfg.Rules, rc)
	}

	return cfg
}
