package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/1broseidon/winrules/internal/event"
	"github.com/1broseidon/winrules/internal/rules"
)

func TestBuildStore_PriorityOrderAndWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = []RuleConfig{
		{Name: "low", Enabled: true, Priority: 10, Actions: []rules.ActionSpec{{Type: "focus"}}},
		{Name: "first-50", Enabled: true, Priority: 50, Conditions: map[string]any{"cpu_above": 90}, Actions: []rules.ActionSpec{{Type: "close"}}},
		{Name: "high", Enabled: false, Priority: 99, Events: []string{"window_moved"}, Actions: []rules.ActionSpec{{Type: "teleport"}}},
		{Name: "second-50", Enabled: true, Priority: 50, Actions: []rules.ActionSpec{{Type: "minimize"}}},
	}

	store, warnings, err := BuildStore(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var names []string
	for _, r := range store.Rules() {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"high", "first-50", "second-50", "low"}, names); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if store.EnabledCount() != 3 {
		t.Fatalf("enabled = %d, want 3", store.EnabledCount())
	}

	high, _ := store.Get("high")
	if !high.AppliesTo(event.WindowMoved) || high.AppliesTo(event.WindowCreated) {
		t.Fatalf("events filter not carried: %+v", high.Events)
	}

	if len(warnings) != 2 {
		t.Fatalf("warnings = %q, want 2", warnings)
	}
	joined := strings.Join(warnings, "\n")
	if !strings.Contains(joined, "cpu_above") || !strings.Contains(joined, "teleport") {
		t.Fatalf("warnings missing keys: %q", warnings)
	}
	if !strings.Contains(joined, "known: ") || !strings.Contains(joined, "close_duplicates") {
		t.Fatalf("unknown action warning does not list the known types: %q", warnings)
	}
}

func TestLoadStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"rules:",
		"  - name: notes",
		"    conditions: {title_contains: notes}",
		"    actions: [{type: resize, params: {width: 800, height: 600}}]",
		"",
	}, "\n"))

	cfg, store, warnings, err := LoadStore(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil || store.Len() != 1 || len(warnings) != 0 {
		t.Fatalf("unexpected result: len=%d warnings=%q", store.Len(), warnings)
	}
	r, ok := store.Get("notes")
	if !ok {
		t.Fatalf("rule notes missing")
	}
	w, err := r.Actions[0].Int("width")
	if err != nil || w != 800 {
		t.Fatalf("width = %d, %v", w, err)
	}
}
