// Package mcpserver exposes a running daemon to MCP clients over stdio.
package mcpserver

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/engine"
	"github.com/1broseidon/winrules/internal/ipc"
)

const (
	ServerName    = "winrules"
	ServerVersion = "0.1.0"
)

// Daemon is the control surface the tools call. *ipc.Client satisfies it.
type Daemon interface {
	GetStatus() (*ipc.StatusData, error)
	GetStats() (*engine.Statistics, error)
	ListRules() ([]ipc.RuleInfo, error)
	ListWindows() ([]engine.Window, error)
	Reload() (*ipc.ReloadData, error)
	SetRuleEnabled(name string, enabled bool) error
}

var _ Daemon = (*ipc.Client)(nil)

// Server is the MCP server for rule inspection and control.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
	logger    *zap.Logger
}

// NewServer creates an MCP server that forwards tool calls to d.
func NewServer(d Daemon, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		daemon: d,
		logger: logger,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_status",
		Description: "Report whether the winrules daemon is running, how many rules are loaded and enabled, and the outcome of the last reload.",
	}, s.handleGetStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_statistics",
		Description: "Return the rule engine counters: events processed, windows tracked, executions per rule and action failures per rule.",
	}, s.handleGetStatistics)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_rules",
		Description: "List the loaded rules in evaluation order (highest priority first) with their conditions, actions and counters.",
	}, s.handleListRules)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List the windows the rule engine currently tracks, ordered by handle. Optionally filter by process name.",
	}, s.handleListWindows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "reload_rules",
		Description: "Re-read the configuration file and atomically replace the rule set. On failure the previous rules stay active and the error is returned.",
	}, s.handleReloadRules)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_rule_enabled",
		Description: "Enable or disable a rule by name until the next reload.",
	}, s.handleSetRuleEnabled)
}
