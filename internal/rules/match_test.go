package rules

import (
	"testing"

	"github.com/1broseidon/winrules/internal/event"
)

func mustRule(t *testing.T, r Rule) Rule {
	t.Helper()
	s, err := NewStore(r)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got, _ := s.Get(r.Name)
	return got
}

func subject(process, title, class string, monitor int) Subject {
	return Subject{ProcessName: process, Title: title, WindowClass: class, Monitor: monitor}
}

func TestMatches_ProcessNameIsCaseInsensitive(t *testing.T) {
	r := mustRule(t, Rule{Name: "chrome", Enabled: true, Conditions: map[string]any{"process_name": "chrome.exe"}})

	if !Matches(r, event.WindowCreated, subject("Chrome.EXE", "", "", event.NoMonitor)) {
		t.Fatalf("expected case-insensitive process_name match")
	}
	if Matches(r, event.WindowCreated, subject("chromium", "", "", event.NoMonitor)) {
		t.Fatalf("process_name must be an exact match")
	}
	if Matches(r, event.WindowCreated, subject("", "", "", event.NoMonitor)) {
		t.Fatalf("unresolved process name must not match")
	}
}

func TestMatches_TitleConditions(t *testing.T) {
	contains := mustRule(t, Rule{Name: "contains", Conditions: map[string]any{"title_contains": "Inbox"}})
	if !Matches(contains, event.WindowActivated, subject("", "Mail - INBOX (3)", "", event.NoMonitor)) {
		t.Fatalf("expected case-insensitive substring match")
	}

	re := mustRule(t, Rule{Name: "re", Conditions: map[string]any{"title_regex": `^Untitled \d+$`}})
	if !Matches(re, event.WindowCreated, subject("", "Untitled 12", "", event.NoMonitor)) {
		t.Fatalf("expected regex match")
	}
	if Matches(re, event.WindowCreated, subject("", "Untitled twelve", "", event.NoMonitor)) {
		t.Fatalf("unexpected regex match")
	}
}

func TestMatches_MonitorIndexAbsentFailsClosed(t *testing.T) {
	r := mustRule(t, Rule{Name: "mon", Conditions: map[string]any{"monitor_index": 1}})

	if !Matches(r, event.WindowMoved, subject("", "", "", 1)) {
		t.Fatalf("expected monitor_index match")
	}
	if Matches(r, event.WindowMoved, subject("", "", "", event.NoMonitor)) {
		t.Fatalf("undeterminable monitor must not match")
	}
	if Matches(r, event.WindowMoved, subject("", "", "", 0)) {
		t.Fatalf("unexpected monitor_index match")
	}
}

func TestMatches_MonitorIndexAcceptsJSONNumbers(t *testing.T) {
	r := mustRule(t, Rule{Name: "mon", Conditions: map[string]any{"monitor_index": float64(2)}})
	if !Matches(r, event.WindowCreated, subject("", "", "", 2)) {
		t.Fatalf("expected float64 monitor_index to match")
	}
}

func TestMatches_WindowClassIsExact(t *testing.T) {
	r := mustRule(t, Rule{Name: "class", Conditions: map[string]any{"window_class": "Firefox"}})
	if !Matches(r, event.WindowCreated, subject("", "", "Firefox", event.NoMonitor)) {
		t.Fatalf("expected window_class match")
	}
	if Matches(r, event.WindowCreated, subject("", "", "firefox", event.NoMonitor)) {
		t.Fatalf("window_class must be case-sensitive")
	}
}

func TestMatches_AllConditionsMustHold(t *testing.T) {
	r := mustRule(t, Rule{Name: "and", Conditions: map[string]any{
		"process_name":   "code",
		"title_contains": "main.go",
	}})

	if !Matches(r, event.WindowActivated, subject("code", "main.go - winrules", "", 0)) {
		t.Fatalf("expected both conditions to hold")
	}
	if Matches(r, event.WindowActivated, subject("code", "README.md", "", 0)) {
		t.Fatalf("expected AND semantics")
	}
}

func TestMatches_EmptyConditionsMatchApplicableKinds(t *testing.T) {
	all := mustRule(t, Rule{Name: "all"})
	for _, k := range event.Kinds() {
		if !Matches(all, k, Subject{Monitor: event.NoMonitor}) {
			t.Fatalf("empty rule should match %s", k)
		}
	}

	created := mustRule(t, Rule{Name: "created", Events: []event.Kind{event.WindowCreated}})
	if !Matches(created, event.WindowCreated, Subject{Monitor: event.NoMonitor}) {
		t.Fatalf("expected match for listed kind")
	}
	if Matches(created, event.WindowMoved, Subject{Monitor: event.NoMonitor}) {
		t.Fatalf("unexpected match for unlisted kind")
	}
}

func TestMatches_UnknownConditionNeverMatches(t *testing.T) {
	r := mustRule(t, Rule{Name: "typo", Conditions: map[string]any{"proces_name": "x"}})
	if Matches(r, event.WindowCreated, subject("x", "", "", 0)) {
		t.Fatalf("unknown condition keys must fail closed")
	}
	if got := r.Unknown(); len(got) != 1 || got[0] != "proces_name" {
		t.Fatalf("Unknown() = %v, want [proces_name]", got)
	}
}

func TestSubjectOf_PrefersEventFields(t *testing.T) {
	tracked := Subject{ProcessName: "old", Title: "old title", WindowClass: "Old", Monitor: 0}
	ev := event.Event{Kind: event.WindowMoved, Title: "new title", Monitor: 1}

	got := SubjectOf(ev, tracked)
	want := Subject{ProcessName: "old", Title: "new title", WindowClass: "Old", Monitor: 1}
	if got != want {
		t.Fatalf("SubjectOf = %+v, want %+v", got, want)
	}

	ev.Monitor = event.NoMonitor
	if got := SubjectOf(ev, tracked); got.Monitor != 0 {
		t.Fatalf("unresolved event monitor should keep tracked value, got %d", got.Monitor)
	}
}
