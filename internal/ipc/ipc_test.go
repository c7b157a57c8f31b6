package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/1broseidon/winrules/internal/engine"
	"github.com/1broseidon/winrules/internal/rules"
)

type fakeDaemon struct {
	mu      sync.Mutex
	enabled map[string]bool
	cleared int
	reloads int
	failRe  error
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{enabled: map[string]bool{"chrome-left": true}}
}

func (f *fakeDaemon) Status() StatusData {
	return StatusData{DaemonRunning: true, MonitorRunning: true, EngineRunning: true, RuleCount: 1, EnabledRules: 1, PollInterval: time.Second}
}

func (f *fakeDaemon) Statistics() engine.Statistics {
	return engine.Statistics{
		TotalEventsProcessed:  12,
		CurrentWindowsTracked: 3,
		EnabledRules:          1,
		RuleExecutionCounts:   map[string]uint64{"chrome-left": 2},
		ActionFailures:        map[string]uint64{},
	}
}

func (f *fakeDaemon) Rules() []RuleInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []RuleInfo{{
		Name:     "chrome-left",
		Enabled:  f.enabled["chrome-left"],
		Priority: 50,
		Actions:  []rules.ActionSpec{{Type: "move", Params: map[string]any{"x": float64(0), "y": float64(0)}}},
	}}
}

func (f *fakeDaemon) Windows() []engine.Window {
	return []engine.Window{{Handle: 7, PID: 42, ProcessName: "chrome", Title: "Inbox", Monitor: 0}}
}

func (f *fakeDaemon) Reload() (ReloadData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRe != nil {
		return ReloadData{}, f.failRe
	}
	f.reloads++
	return ReloadData{Rules: 1, Enabled: 1, Warnings: []string{"rule \"x\": unknown condition \"y\""}}, nil
}

func (f *fakeDaemon) SetRuleEnabled(name string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.enabled[name]; !ok {
		return errors.New("unknown rule " + name)
	}
	f.enabled[name] = enabled
	return nil
}

func (f *fakeDaemon) ClearStatistics() {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
}

func (f *fakeDaemon) counts() (reloads, cleared int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads, f.cleared
}

func startServer(t *testing.T, d Daemon) *Server {
	t.Helper()
	dir, err := os.MkdirTemp("", "wr")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("WINRULES_SOCKET", filepath.Join(dir, "w.sock"))

	srv, err := NewServer(d, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func TestClientServer_RoundTrip(t *testing.T) {
	d := newFakeDaemon()
	startServer(t, d)
	c := NewClient()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	status, err := c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.DaemonRunning || status.PollInterval != time.Second {
		t.Fatalf("unexpected status %+v", status)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if diff := cmp.Diff(d.Statistics(), *stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}

	rs, err := c.ListRules()
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if diff := cmp.Diff(d.Rules(), rs); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}

	ws, err := c.ListWindows()
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	if len(ws) != 1 || ws[0].Handle != 7 || ws[0].ProcessName != "chrome" {
		t.Fatalf("unexpected windows %+v", ws)
	}

	reload, err := c.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if reloads, _ := d.counts(); reload.Rules != 1 || len(reload.Warnings) != 1 || reloads != 1 {
		t.Fatalf("unexpected reload %+v", reload)
	}

	if err := c.ClearStats(); err != nil {
		t.Fatalf("ClearStats: %v", err)
	}
	if _, cleared := d.counts(); cleared != 1 {
		t.Fatalf("cleared = %d, want 1", cleared)
	}
}

func TestClientServer_SetRuleEnabled(t *testing.T) {
	d := newFakeDaemon()
	startServer(t, d)
	c := NewClient()

	if err := c.SetRuleEnabled("chrome-left", false); err != nil {
		t.Fatalf("SetRuleEnabled: %v", err)
	}
	rs, _ := c.ListRules()
	if rs[0].Enabled {
		t.Fatalf("expected rule disabled")
	}

	err := c.SetRuleEnabled("missing", true)
	if err == nil || !strings.Contains(err.Error(), "unknown rule missing") {
		t.Fatalf("expected daemon error, got %v", err)
	}
}

func TestClientServer_ReloadFailureIsReported(t *testing.T) {
	d := newFakeDaemon()
	d.failRe = errors.New("config.yaml:3:5: rules.x.actions: at least one action is required")
	startServer(t, d)

	_, err := NewClient().Reload()
	if err == nil || !strings.Contains(err.Error(), "at least one action") {
		t.Fatalf("expected reload error, got %v", err)
	}
}

func TestServer_UnknownCommandAndBadJSON(t *testing.T) {
	srv := startServer(t, newFakeDaemon())

	send := func(line string) Response {
		t.Helper()
		conn, err := net.Dial("unix", srv.SocketPath())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		data, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp
	}

	resp := send(`{"command":"FLY"}`)
	if resp.Status != "ERROR" || !strings.Contains(resp.Error, "Unknown command") {
		t.Fatalf("unexpected response %+v", resp)
	}
	resp = send(`not json`)
	if resp.Status != "ERROR" || !strings.Contains(resp.Error, "Invalid request") {
		t.Fatalf("unexpected response %+v", resp)
	}
	resp = send(`{"command":"SET_RULE_ENABLED","payload":{"enabled":true}}`)
	if resp.Status != "ERROR" || resp.Error != "name is required" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestClient_NoDaemon(t *testing.T) {
	t.Setenv("WINRULES_SOCKET", filepath.Join(t.TempDir(), "absent.sock"))
	err := NewClient().Ping()
	if err == nil || !strings.Contains(err.Error(), "is the daemon running") {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestServer_StopRemovesSocket(t *testing.T) {
	srv := startServer(t, newFakeDaemon())
	srv.Stop()
	if _, err := os.Stat(srv.SocketPath()); !os.IsNotExist(err) {
		t.Fatalf("socket still present: %v", err)
	}
}
