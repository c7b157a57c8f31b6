package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/1broseidon/winrules/internal/event"
	"github.com/1broseidon/winrules/internal/logging"
	"github.com/1broseidon/winrules/internal/rules"
)

const (
	DefaultPollInterval   = time.Second
	DefaultCoalesceWindow = 50 * time.Millisecond
	DefaultMetricsListen  = "127.0.0.1:9464"
)

// Config is the effective daemon configuration after defaults, includes and
// overrides have been applied.
type Config struct {
	LogLevel     string        `yaml:"log_level" json:"log_level"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// CoalesceWindow bounds how long window moves are held back for
	// coalescing. Zero disables coalescing.
	CoalesceWindow time.Duration `yaml:"coalesce_window" json:"coalesce_window"`
	WatchConfig    bool          `yaml:"watch_config" json:"watch_config"`
	Logging        LoggingConfig `yaml:"logging" json:"logging"`
	Metrics        MetricsConfig `yaml:"metrics" json:"metrics"`
	IPC            IPCConfig     `yaml:"ipc" json:"ipc"`
	Rules          []RuleConfig  `yaml:"rules" json:"rules"`
}

type LoggingConfig struct {
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles   int    `yaml:"max_files" json:"max_files"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

type IPCConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// RuleConfig is one rule as written in the config file.
type RuleConfig struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled     bool               `yaml:"enabled" json:"enabled"`
	Priority    int                `yaml:"priority" json:"priority"`
	Events      []string           `yaml:"events,omitempty" json:"events,omitempty"`
	Conditions  map[string]any     `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Actions     []rules.ActionSpec `yaml:"actions" json:"actions"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		PollInterval:   DefaultPollInterval,
		CoalesceWindow: DefaultCoalesceWindow,
		WatchConfig:    true,
		Logging: LoggingConfig{
			Format:     string(logging.FormatAuto),
			MaxSizeMB:  logging.DefaultMaxSizeMB,
			MaxFiles:   logging.DefaultMaxBackups,
			MaxAgeDays: logging.DefaultMaxAgeDays,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  DefaultMetricsListen,
		},
		IPC: IPCConfig{
			Enabled: true,
		},
	}
}

// LoggingOptions converts the logging section for the logging package.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.LogLevel,
		Format:     logging.Format(c.Logging.Format),
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxFiles,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warning, error")}
	}
	if c.PollInterval < 0 {
		return &ValidationError{Path: "poll_interval", Err: fmt.Errorf("poll_interval must be >= 0")}
	}
	if c.CoalesceWindow < 0 {
		return &ValidationError{Path: "coalesce_window", Err: fmt.Errorf("coalesce_window must be >= 0")}
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return &ValidationError{Path: "logging.format", Err: err}
	}
	if c.Logging.MaxSizeMB < 0 {
		return &ValidationError{Path: "logging.max_size_mb", Err: fmt.Errorf("max_size_mb must be >= 0")}
	}
	if c.Logging.MaxFiles < 0 {
		return &ValidationError{Path: "logging.max_files", Err: fmt.Errorf("max_files must be >= 0")}
	}
	if c.Logging.MaxAgeDays < 0 {
		return &ValidationError{Path: "logging.max_age_days", Err: fmt.Errorf("max_age_days must be >= 0")}
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return &ValidationError{Path: "metrics.listen", Err: fmt.Errorf("listen address is required when metrics are enabled")}
	}

	seen := make(map[string]struct{}, len(c.Rules))
	for i, rc := range c.Rules {
		if strings.TrimSpace(rc.Name) == "" {
			return &ValidationError{Path: fmt.Sprintf("rules[%d].name", i), Err: fmt.Errorf("rule name is required")}
		}
		path := "rules." + rc.Name
		if _, dup := seen[rc.Name]; dup {
			return &ValidationError{Path: path, Err: fmt.Errorf("duplicate rule name %q", rc.Name)}
		}
		seen[rc.Name] = struct{}{}

		if len(rc.Actions) == 0 {
			return &ValidationError{Path: path + ".actions", Err: fmt.Errorf("at least one action is required")}
		}
		for j, a := range rc.Actions {
			if strings.TrimSpace(a.Type) == "" {
				return &ValidationError{Path: path + ".actions", Err: fmt.Errorf("action %d has no type", j)}
			}
		}
		for _, name := range rc.Events {
			if _, err := event.ParseKind(name); err != nil {
				return &ValidationError{Path: path + ".events", Err: err}
			}
		}
		r, err := rc.rule()
		if err != nil {
			return &ValidationError{Path: path, Err: err}
		}
		if _, err := rules.NewStore(r); err != nil {
			return &ValidationError{Path: path + ".conditions", Err: err}
		}
	}
	return nil
}

// rule converts the config entry into an uncompiled rule.
func (rc RuleConfig) rule() (rules.Rule, error) {
	kinds := make([]event.Kind, 0, len(rc.Events))
	for _, name := range rc.Events {
		k, err := event.ParseKind(name)
		if err != nil {
			return rules.Rule{}, err
		}
		kinds = append(kinds, k)
	}
	return rules.Rule{
		Name:        rc.Name,
		Description: rc.Description,
		Enabled:     rc.Enabled,
		Priority:    rc.Priority,
		Events:      kinds,
		Conditions:  rc.Conditions,
		Actions:     rc.Actions,
	}, nil
}
