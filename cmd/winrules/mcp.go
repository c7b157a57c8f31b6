package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/ipc"
	"github.com/1broseidon/winrules/internal/logging"
	"github.com/1broseidon/winrules/internal/mcpserver"
)

func createMCPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol integration",
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the MCP server on stdio. Designed to be invoked by MCP clients.
Tools talk to a running daemon over its control socket.

Example:
  claude mcp add winrules -- winrules mcp serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol; logs go to stderr as JSON.
			logger, err := logging.New(logging.Options{Level: "warn", Format: logging.FormatJSON})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			server := mcpserver.NewServer(ipc.NewClient(), logger.Named("mcp"))
			if err := server.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("MCP server error", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.AddCommand(serve)
	return cmd
}
