package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/engine"
	"github.com/1broseidon/winrules/internal/ipc"
)

func (s *Server) handleGetStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st, err := s.daemon.GetStatus()
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(st), nil
}

func (s *Server) handleGetStatistics(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, StatisticsOutput, error) {
	stats, err := s.daemon.GetStats()
	if err != nil {
		return nil, StatisticsOutput{}, err
	}
	out := StatisticsOutput{
		TotalEventsProcessed:  stats.TotalEventsProcessed,
		CurrentWindowsTracked: stats.CurrentWindowsTracked,
		EnabledRules:          stats.EnabledRules,
		RuleExecutionCounts:   stats.RuleExecutionCounts,
		ActionFailures:        stats.ActionFailures,
		StartedAt:             timestamp(stats.StartedAt),
	}
	if out.RuleExecutionCounts == nil {
		out.RuleExecutionCounts = map[string]uint64{}
	}
	if out.ActionFailures == nil {
		out.ActionFailures = map[string]uint64{}
	}
	return nil, out, nil
}

func (s *Server) handleListRules(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ListRulesOutput, error) {
	infos, err := s.daemon.ListRules()
	if err != nil {
		return nil, ListRulesOutput{}, err
	}
	out := ListRulesOutput{Rules: make([]RuleInfo, 0, len(infos))}
	for _, r := range infos {
		out.Rules = append(out.Rules, ruleInfo(r))
	}
	return nil, out, nil
}

func (s *Server) handleListWindows(_ context.Context, _ *mcpsdk.CallToolRequest, args ListWindowsInput) (*mcpsdk.CallToolResult, ListWindowsOutput, error) {
	windows, err := s.daemon.ListWindows()
	if err != nil {
		return nil, ListWindowsOutput{}, err
	}
	out := ListWindowsOutput{Windows: make([]WindowInfo, 0, len(windows))}
	for _, w := range windows {
		if args.ProcessName != "" && !strings.EqualFold(w.ProcessName, args.ProcessName) {
			continue
		}
		out.Windows = append(out.Windows, windowInfo(w))
	}
	return nil, out, nil
}

func (s *Server) handleReloadRules(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ReloadOutput, error) {
	data, err := s.daemon.Reload()
	if err != nil {
		s.logger.Warn("reload via MCP failed", zap.Error(err))
		return nil, ReloadOutput{}, fmt.Errorf("reload failed, previous rules remain active: %w", err)
	}
	s.logger.Info("rules reloaded via MCP", zap.Int("rules", data.Rules))
	return nil, ReloadOutput{Rules: data.Rules, Enabled: data.Enabled, Warnings: data.Warnings}, nil
}

func (s *Server) handleSetRuleEnabled(_ context.Context, _ *mcpsdk.CallToolRequest, args SetRuleEnabledInput) (*mcpsdk.CallToolResult, SetRuleEnabledOutput, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, SetRuleEnabledOutput{}, fmt.Errorf("name is required")
	}
	if err := s.daemon.SetRuleEnabled(name, args.Enabled); err != nil {
		return nil, SetRuleEnabledOutput{}, err
	}
	return nil, SetRuleEnabledOutput{Name: name, Enabled: args.Enabled}, nil
}

func statusOutput(st *ipc.StatusData) StatusOutput {
	out := StatusOutput{
		DaemonRunning:   st.DaemonRunning,
		MonitorRunning:  st.MonitorRunning,
		MonitorError:    st.MonitorError,
		EngineRunning:   st.EngineRunning,
		UptimeSeconds:   st.UptimeSeconds,
		ConfigPath:      st.ConfigPath,
		Rules:           st.RuleCount,
		EnabledRules:    st.EnabledRules,
		WindowsTracked:  st.WindowsTracked,
		EventsDelivered: st.EventsDelivered,
		EventsCoalesced: st.EventsCoalesced,
		LastReload:      timestamp(st.LastReload),
		LastReloadError: st.LastReloadError,
	}
	if st.PollInterval > 0 {
		out.PollInterval = st.PollInterval.String()
	}
	if st.CoalesceWindow > 0 {
		out.CoalesceWindow = st.CoalesceWindow.String()
	}
	return out
}

// ruleInfo flattens conditions and actions into sorted key=value strings so
// the output schema stays simple.
func ruleInfo(r ipc.RuleInfo) RuleInfo {
	conds := make([]string, 0, len(r.Conditions))
	for k, v := range r.Conditions {
		conds = append(conds, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(conds)

	actions := make([]string, 0, len(r.Actions))
	for _, a := range r.Actions {
		if len(a.Params) == 0 {
			actions = append(actions, a.Type)
			continue
		}
		keys := make([]string, 0, len(a.Params))
		for k := range a.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, a.Params[k]))
		}
		actions = append(actions, a.Type+"("+strings.Join(parts, ",")+")")
	}

	return RuleInfo{
		Name:        r.Name,
		Description: r.Description,
		Enabled:     r.Enabled,
		Priority:    r.Priority,
		Events:      r.Events,
		Conditions:  conds,
		Actions:     actions,
		Executions:  r.Executions,
		Failures:    r.Failures,
	}
}

func windowInfo(w engine.Window) WindowInfo {
	return WindowInfo{
		Handle:      uint32(w.Handle),
		PID:         w.PID,
		ProcessName: w.ProcessName,
		Title:       w.Title,
		Class:       w.Class,
		Monitor:     w.Monitor,
		X:           w.Bounds.X,
		Y:           w.Bounds.Y,
		Width:       w.Bounds.Width,
		Height:      w.Bounds.Height,
		FirstSeen:   timestamp(w.FirstSeen),
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
