package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/winrules/internal/rules"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawLoggingConfig struct {
	Format     *string `yaml:"format"`
	File       *string `yaml:"file"`
	MaxSizeMB  *int    `yaml:"max_size_mb"`
	MaxFiles   *int    `yaml:"max_files"`
	MaxAgeDays *int    `yaml:"max_age_days"`
	Compress   *bool   `yaml:"compress"`
}

type RawMetricsConfig struct {
	Enabled *bool   `yaml:"enabled"`
	Listen  *string `yaml:"listen"`
}

type RawIPCConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// RawRule is a rule entry as decoded from one file. Entries with the same
// name in later files overlay earlier ones field by field.
type RawRule struct {
	Name        string             `yaml:"name"`
	Description *string            `yaml:"description"`
	Enabled     *bool              `yaml:"enabled"`
	Priority    *int               `yaml:"priority"`
	Events      []string           `yaml:"events"`
	Conditions  map[string]any     `yaml:"conditions"`
	Actions     []rules.ActionSpec `yaml:"actions"`
}

type RawConfig struct {
	Include        IncludeList       `yaml:"include"`
	LogLevel       *string           `yaml:"log_level"`
	PollInterval   *time.Duration    `yaml:"poll_interval"`
	CoalesceWindow *time.Duration    `yaml:"coalesce_window"`
	WatchConfig    *bool             `yaml:"watch_config"`
	Logging        *RawLoggingConfig `yaml:"logging"`
	Metrics        *RawMetricsConfig `yaml:"metrics"`
	IPC            *RawIPCConfig     `yaml:"ipc"`
	Rules          []RawRule         `yaml:"rules"`
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	if overlay.LogLevel != nil {
		out.LogLevel = overlay.LogLevel
	}
	if overlay.PollInterval != nil {
		out.PollInterval = overlay.PollInterval
	}
	if overlay.CoalesceWindow != nil {
		out.CoalesceWindow = overlay.CoalesceWindow
	}
	if overlay.WatchConfig != nil {
		out.WatchConfig = overlay.WatchConfig
	}

	if overlay.Logging != nil {
		if out.Logging == nil {
			out.Logging = &RawLoggingConfig{}
		} else {
			cp := *out.Logging
			out.Logging = &cp
		}
		if overlay.Logging.Format != nil {
			out.Logging.Format = overlay.Logging.Format
		}
		if overlay.Logging.File != nil {
			out.Logging.File = overlay.Logging.File
		}
		if overlay.Logging.MaxSizeMB != nil {
			out.Logging.MaxSizeMB = overlay.Logging.MaxSizeMB
		}
		if overlay.Logging.MaxFiles != nil {
			out.Logging.MaxFiles = overlay.Logging.MaxFiles
		}
		if overlay.Logging.MaxAgeDays != nil {
			out.Logging.MaxAgeDays = overlay.Logging.MaxAgeDays
		}
		if overlay.Logging.Compress != nil {
			out.Logging.Compress = overlay.Logging.Compress
		}
	}

	if overlay.Metrics != nil {
		if out.Metrics == nil {
			out.Metrics = &RawMetricsConfig{}
		} else {
			cp := *out.Metrics
			out.Metrics = &cp
		}
		if overlay.Metrics.Enabled != nil {
			out.Metrics.Enabled = overlay.Metrics.Enabled
		}
		if overlay.Metrics.Listen != nil {
			out.Metrics.Listen = overlay.Metrics.Listen
		}
	}

	if overlay.IPC != nil {
		if out.IPC == nil {
			out.IPC = &RawIPCConfig{}
		} else {
			cp := *out.IPC
			out.IPC = &cp
		}
		if overlay.IPC.Enabled != nil {
			out.IPC.Enabled = overlay.IPC.Enabled
		}
	}

	if overlay.Rules != nil {
		out.Rules = mergeRawRules(out.Rules, overlay.Rules)
	}

	return out
}

// mergeRawRules overlays rules whose name exists in base, keeping the
// position of the earlier declaration, and appends the rest. Duplicates
// within overlay itself are kept so validation can report them.
func mergeRawRules(base []RawRule, overlay []RawRule) []RawRule {
	out := append([]RawRule(nil), base...)
	index := make(map[string]int, len(out))
	for i, r := range out {
		if r.Name != "" {
			index[r.Name] = i
		}
	}
	for _, r := range overlay {
		if i, ok := index[r.Name]; ok && r.Name != "" {
			out[i] = mergeRawRule(out[i], r)
			continue
		}
		out = append(out, r)
	}
	return out
}

func mergeRawRule(base RawRule, overlay RawRule) RawRule {
	out := base
	if overlay.Description != nil {
		out.Description = overlay.Description
	}
	if overlay.Enabled != nil {
		out.Enabled = overlay.Enabled
	}
	if overlay.Priority != nil {
		out.Priority = overlay.Priority
	}
	if overlay.Events != nil {
		out.Events = overlay.Events
	}
	if overlay.Conditions != nil {
		out.Conditions = overlay.Conditions
	}
	if overlay.Actions != nil {
		out.Actions = overlay.Actions
	}
	return out
}
