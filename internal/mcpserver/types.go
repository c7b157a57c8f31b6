package mcpserver

// EmptyInput is the input for tools that take no arguments.
type EmptyInput struct{}

// StatusOutput is the output for the get_status tool.
type StatusOutput struct {
	DaemonRunning   bool   `json:"daemon_running"`
	MonitorRunning  bool   `json:"monitor_running"`
	MonitorError    string `json:"monitor_error,omitempty"`
	EngineRunning   bool   `json:"engine_running"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	ConfigPath      string `json:"config_path,omitempty"`
	Rules           int    `json:"rules"`
	EnabledRules    int    `json:"enabled_rules"`
	WindowsTracked  int    `json:"windows_tracked"`
	PollInterval    string `json:"poll_interval,omitempty"`
	CoalesceWindow  string `json:"coalesce_window,omitempty"`
	EventsDelivered uint64 `json:"events_delivered"`
	EventsCoalesced uint64 `json:"events_coalesced"`
	LastReload      string `json:"last_reload,omitempty"`
	LastReloadError string `json:"last_reload_error,omitempty"`
}

// StatisticsOutput is the output for the get_statistics tool.
type StatisticsOutput struct {
	TotalEventsProcessed  uint64            `json:"total_events_processed"`
	CurrentWindowsTracked int               `json:"current_windows_tracked"`
	EnabledRules          int               `json:"enabled_rules"`
	RuleExecutionCounts   map[string]uint64 `json:"rule_execution_counts"`
	ActionFailures        map[string]uint64 `json:"action_failures"`
	StartedAt             string            `json:"started_at,omitempty"`
}

// RuleInfo describes one rule in evaluation order.
type RuleInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Priority    int      `json:"priority"`
	Events      []string `json:"events,omitempty"`
	Conditions  []string `json:"conditions"`
	Actions     []string `json:"actions"`
	Executions  uint64   `json:"executions"`
	Failures    uint64   `json:"failures"`
}

// ListRulesOutput is the output for the list_rules tool.
type ListRulesOutput struct {
	Rules []RuleInfo `json:"rules"`
}

// WindowInfo describes one tracked window.
type WindowInfo struct {
	Handle      uint32 `json:"handle"`
	PID         int    `json:"pid,omitempty"`
	ProcessName string `json:"process_name,omitempty"`
	Title       string `json:"title"`
	Class       string `json:"class,omitempty"`
	Monitor     int    `json:"monitor_index"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FirstSeen   string `json:"first_seen"`
}

// ListWindowsInput is the input for the list_windows tool.
type ListWindowsInput struct {
	ProcessName string `json:"process_name,omitempty" jsonschema:"Only list windows owned by this process (case-insensitive)"`
}

// ListWindowsOutput is the output for the list_windows tool.
type ListWindowsOutput struct {
	Windows []WindowInfo `json:"windows"`
}

// ReloadOutput is the output for the reload_rules tool.
type ReloadOutput struct {
	Rules    int      `json:"rules"`
	Enabled  int      `json:"enabled"`
	Warnings []string `json:"warnings,omitempty"`
}

// SetRuleEnabledInput is the input for the set_rule_enabled tool.
type SetRuleEnabledInput struct {
	Name    string `json:"name" jsonschema:"Rule name as listed by list_rules"`
	Enabled bool   `json:"enabled" jsonschema:"True to enable the rule, false to disable it"`
}

// SetRuleEnabledOutput is the output for the set_rule_enabled tool.
type SetRuleEnabledOutput struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}
