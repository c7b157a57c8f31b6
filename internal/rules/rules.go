package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/1broseidon/winrules/internal/event"
)

// DefaultPriority applies to rules that do not declare one.
const DefaultPriority = 50

// ActionSpec is one declared action: a type name plus free-form parameters.
type ActionSpec struct {
	Type   string         `yaml:"type" json:"type"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Int reads an integral parameter.
func (a ActionSpec) Int(key string) (int, error) {
	v, ok := a.Params[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	n, ok := asInt(v)
	if !ok {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, v)
	}
	return n, nil
}

// String reads a string parameter, returning "" when absent.
func (a ActionSpec) String(key string) (string, error) {
	v, ok := a.Params[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

// Rule is a named automation unit. Rules are compiled once by NewStore and
// never modified afterwards; editing means building a new Store.
type Rule struct {
	Name        string
	Description string
	Enabled     bool
	Priority    int
	// Events limits the kinds the rule applies to. Empty means all kinds.
	Events     []event.Kind
	Conditions map[string]any
	Actions    []ActionSpec

	checks  []check
	unknown []string
}

// Unknown returns the condition keys the matcher does not recognise. A rule
// with unknown keys never matches.
func (r Rule) Unknown() []string {
	return append([]string(nil), r.unknown...)
}

// AppliesTo reports whether the rule listens for events of kind k.
func (r Rule) AppliesTo(k event.Kind) bool {
	if len(r.Events) == 0 {
		return true
	}
	for _, want := range r.Events {
		if want == k {
			return true
		}
	}
	return false
}

// compile builds the condition checks for r. Unknown keys are recorded, not
// rejected; malformed values for known keys are errors.
func compile(r Rule) (Rule, error) {
	if strings.TrimSpace(r.Name) == "" {
		return Rule{}, fmt.Errorf("rule name is required")
	}

	keys := make([]string, 0, len(r.Conditions))
	for key := range r.Conditions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	r.checks = make([]check, 0, len(keys))
	r.unknown = nil
	for _, key := range keys {
		build, ok := conditionBuilders[key]
		if !ok {
			r.unknown = append(r.unknown, key)
			continue
		}
		c, err := build(r.Conditions[key])
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: condition %s: %w", r.Name, key, err)
		}
		r.checks = append(r.checks, c)
	}

	r.Events = append([]event.Kind(nil), r.Events...)
	r.Actions = append([]ActionSpec(nil), r.Actions...)
	return r, nil
}

// SortByPriority orders rules by priority, highest first, keeping declaration
// order for equal priorities.
func SortByPriority(rs []Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Priority > rs[j].Priority
	})
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	default:
		return 0, false
	}
}
