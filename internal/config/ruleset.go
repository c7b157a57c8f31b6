package config

import (
	"fmt"
	"strings"

	"github.com/1broseidon/winrules/internal/action"
	"github.com/1broseidon/winrules/internal/rules"
)

// BuildStore compiles the configured rules into a Store ordered by priority,
// highest first. Unknown condition keys and action types do not fail the
// load; they are returned as warnings for the caller to report.
func BuildStore(cfg *Config) (*rules.Store, []string, error) {
	rs := make([]rules.Rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		r, err := rc.rule()
		if err != nil {
			return nil, nil, &ValidationError{Path: "rules." + rc.Name + ".events", Err: err}
		}
		rs = append(rs, r)
	}
	rules.SortByPriority(rs)

	store, err := rules.NewStore(rs...)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	for _, r := range store.Rules() {
		for _, key := range r.Unknown() {
			warnings = append(warnings, fmt.Sprintf("rule %q: unknown condition %q; the rule will never match", r.Name, key))
		}
		for _, a := range r.Actions {
			if !action.Known(a.Type) {
				warnings = append(warnings, fmt.Sprintf("rule %q: unknown action type %q; it will always fail (known: %s)", r.Name, a.Type, strings.Join(action.Types(), ", ")))
			}
		}
	}
	return store, warnings, nil
}

// LoadStore loads path and compiles its rules.
func LoadStore(path string) (*Config, *rules.Store, []string, error) {
	res, err := LoadFromPath(path)
	if err != nil {
		return nil, nil, nil, err
	}
	store, warnings, err := BuildStore(res.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	return res.Config, store, warnings, nil
}
