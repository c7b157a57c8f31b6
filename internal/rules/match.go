package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/1broseidon/winrules/internal/event"
)

// Subject is the view of a window the matcher evaluates conditions against:
// the engine's tracked state merged with the triggering event.
type Subject struct {
	ProcessName string
	Title       string
	WindowClass string
	Monitor     int
}

// SubjectOf merges ev over the tracked fields, preferring fresh event values.
func SubjectOf(ev event.Event, tracked Subject) Subject {
	s := tracked
	if ev.ProcessName != "" {
		s.ProcessName = ev.ProcessName
	}
	if ev.Title != "" {
		s.Title = ev.Title
	}
	if ev.WindowClass != "" {
		s.WindowClass = ev.WindowClass
	}
	if ev.HasMonitor() {
		s.Monitor = ev.Monitor
	}
	return s
}

type check func(s Subject) bool

type conditionBuilder func(expected any) (check, error)

var conditionBuilders = map[string]conditionBuilder{
	"process_name":   buildProcessName,
	"title_contains": buildTitleContains,
	"title_regex":    buildTitleRegex,
	"monitor_index":  buildMonitorIndex,
	"window_class":   buildWindowClass,
}

// KnownCondition reports whether key is a supported condition.
func KnownCondition(key string) bool {
	_, ok := conditionBuilders[key]
	return ok
}

// Matches reports whether every condition of r holds for the event kind and
// subject. Unknown condition keys never match.
func Matches(r Rule, kind event.Kind, s Subject) bool {
	if !r.AppliesTo(kind) {
		return false
	}
	if len(r.unknown) > 0 {
		return false
	}
	for _, c := range r.checks {
		if !c(s) {
			return false
		}
	}
	return true
}

func buildProcessName(expected any) (check, error) {
	want, ok := expected.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", expected)
	}
	return func(s Subject) bool {
		return s.ProcessName != "" && strings.EqualFold(s.ProcessName, want)
	}, nil
}

func buildTitleContains(expected any) (check, error) {
	want, ok := expected.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", expected)
	}
	want = strings.ToLower(want)
	return func(s Subject) bool {
		return s.Title != "" && strings.Contains(strings.ToLower(s.Title), want)
	}, nil
}

func buildTitleRegex(expected any) (check, error) {
	pattern, ok := expected.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", expected)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return func(s Subject) bool {
		return re.MatchString(s.Title)
	}, nil
}

func buildMonitorIndex(expected any) (check, error) {
	want, ok := asInt(expected)
	if !ok || want < 0 {
		return nil, fmt.Errorf("expected non-negative integer, got %v", expected)
	}
	return func(s Subject) bool {
		return s.Monitor >= 0 && s.Monitor == want
	}, nil
}

func buildWindowClass(expected any) (check, error) {
	want, ok := expected.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", expected)
	}
	return func(s Subject) bool {
		return s.WindowClass != "" && s.WindowClass == want
	}, nil
}
