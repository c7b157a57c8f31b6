package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/1broseidon/winrules/internal/engine"
	"github.com/1broseidon/winrules/internal/rules"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload         CommandType = "RELOAD"
	CommandGetStatus      CommandType = "GET_STATUS"
	CommandGetStats       CommandType = "GET_STATS"
	CommandClearStats     CommandType = "CLEAR_STATS"
	CommandListRules      CommandType = "LIST_RULES"
	CommandListWindows    CommandType = "LIST_WINDOWS"
	CommandSetRuleEnabled CommandType = "SET_RULE_ENABLED"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	DaemonRunning   bool          `json:"daemon_running"`
	MonitorRunning  bool          `json:"monitor_running"`
	MonitorError    string        `json:"monitor_error,omitempty"`
	EngineRunning   bool          `json:"engine_running"`
	UptimeSeconds   int64         `json:"uptime_seconds"`
	ConfigPath      string        `json:"config_path"`
	RuleCount       int           `json:"rule_count"`
	EnabledRules    int           `json:"enabled_rules"`
	WindowsTracked  int           `json:"windows_tracked"`
	PollInterval    time.Duration `json:"poll_interval"`
	CoalesceWindow  time.Duration `json:"coalesce_window"`
	EventsDelivered uint64        `json:"events_delivered"`
	EventsCoalesced uint64        `json:"events_coalesced"`
	LastReload      time.Time     `json:"last_reload"`
	LastReloadError string        `json:"last_reload_error,omitempty"`
}

// RuleInfo describes one rule in the active set, in evaluation order.
type RuleInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Enabled     bool               `json:"enabled"`
	Priority    int                `json:"priority"`
	Events      []string           `json:"events,omitempty"`
	Conditions  map[string]any     `json:"conditions,omitempty"`
	Actions     []rules.ActionSpec `json:"actions"`
	Executions  uint64             `json:"executions"`
	Failures    uint64             `json:"failures"`
}

type RulesData struct {
	Rules []RuleInfo `json:"rules"`
}

type WindowsData struct {
	Windows []engine.Window `json:"windows"`
}

// ReloadData reports the rule set installed by RELOAD.
type ReloadData struct {
	Rules    int      `json:"rules"`
	Enabled  int      `json:"enabled"`
	Warnings []string `json:"warnings,omitempty"`
}

type SetRuleEnabledPayload struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
