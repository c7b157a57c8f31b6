package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths include:
//
//	log_level
//	poll_interval
//	coalesce_window
//	watch_config
//	logging.<field>
//	metrics.enabled
//	metrics.listen
//	ipc.enabled
//	rules
//	rules.<name>
//	rules.<name>.<field>
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	parts := strings.SplitN(path, ".", 3)
	leaf := func(v any) (any, error) {
		if len(parts) != 1 {
			return nil, fmt.Errorf("unknown path: %s", path)
		}
		return v, nil
	}

	switch parts[0] {
	case "log_level":
		return leaf(cfg.LogLevel)
	case "poll_interval":
		return leaf(cfg.PollInterval)
	case "coalesce_window":
		return leaf(cfg.CoalesceWindow)
	case "watch_config":
		return leaf(cfg.WatchConfig)
	case "logging":
		if len(parts) == 1 {
			return cfg.Logging, nil
		}
		switch strings.Join(parts[1:], ".") {
		case "format":
			return cfg.Logging.Format, nil
		case "file":
			return cfg.Logging.File, nil
		case "max_size_mb":
			return cfg.Logging.MaxSizeMB, nil
		case "max_files":
			return cfg.Logging.MaxFiles, nil
		case "max_age_days":
			return cfg.Logging.MaxAgeDays, nil
		case "compress":
			return cfg.Logging.Compress, nil
		}
		return nil, fmt.Errorf("unknown path: %s", path)
	case "metrics":
		if len(parts) == 1 {
			return cfg.Metrics, nil
		}
		switch strings.Join(parts[1:], ".") {
		case "enabled":
			return cfg.Metrics.Enabled, nil
		case "listen":
			return cfg.Metrics.Listen, nil
		}
		return nil, fmt.Errorf("unknown path: %s", path)
	case "ipc":
		if len(parts) == 1 {
			return cfg.IPC, nil
		}
		if len(parts) == 2 && parts[1] == "enabled" {
			return cfg.IPC.Enabled, nil
		}
		return nil, fmt.Errorf("unknown path: %s", path)
	case "rules":
		if len(parts) == 1 {
			return cfg.Rules, nil
		}
		rc, ok := cfg.rule(parts[1])
		if !ok {
			return nil, fmt.Errorf("unknown rule %q", parts[1])
		}
		if len(parts) == 2 {
			return rc, nil
		}
		switch parts[2] {
		case "description":
			return rc.Description, nil
		case "enabled":
			return rc.Enabled, nil
		case "priority":
			return rc.Priority, nil
		case "events":
			return rc.Events, nil
		case "conditions":
			return rc.Conditions, nil
		case "actions":
			return rc.Actions, nil
		}
		if key, ok := strings.CutPrefix(parts[2], "conditions."); ok {
			v, found := rc.Conditions[key]
			if !found {
				return nil, fmt.Errorf("rule %q has no condition %q", rc.Name, key)
			}
			return v, nil
		}
		return nil, fmt.Errorf("unknown path: %s", path)
	default:
		return nil, fmt.Errorf("unknown path: %s", path)
	}
}

func (c *Config) rule(name string) (RuleConfig, bool) {
	for _, rc := range c.Rules {
		if rc.Name == name {
			return rc, true
		}
	}
	return RuleConfig{}, false
}
