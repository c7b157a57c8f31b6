package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/daemon"
	"github.com/1broseidon/winrules/internal/logging"
	"github.com/1broseidon/winrules/internal/platform"
	"github.com/1broseidon/winrules/internal/procs"
)

func createDaemonCommand(global *GlobalFlags, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the rule daemon in the foreground",
		Long: `Run the rule daemon in the foreground.

SIGHUP reloads the rules from the config file; SIGINT and SIGTERM stop the
daemon after in-flight actions complete. Every flag can also be set through
a WINRULES_* environment variable, e.g. WINRULES_LOG_LEVEL=debug.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), global, v)
		},
	}
	addSettingsFlags(cmd, v)
	return cmd
}

func runDaemon(ctx context.Context, global *GlobalFlags, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	path, err := global.configPath()
	if err != nil {
		return err
	}
	res, err := loadEffective(path, v)
	if err != nil {
		return err
	}
	cfg := res.Config

	logger, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := platform.NewLinuxBackendFromDisplay()
	if err != nil {
		return fmt.Errorf("connect to X server: %w", err)
	}
	defer backend.Disconnect()

	d, err := daemon.New(daemon.Options{
		ConfigPath: path,
		Config:     cfg,
		Backend:    backend,
		Processes:  procs.NewTable(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := d.Initialize(); err != nil {
		if errors.Is(err, daemon.ErrNoRules) {
			return fmt.Errorf("%w in %s", err, path)
		}
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, reloading rules")
				if _, err := d.Reload(); err != nil {
					logger.Warn("reload on SIGHUP failed", zap.Error(err))
				}
			default:
				logger.Info("shutting down", zap.Stringer("signal", sig))
				return nil
			}
		}
	}
}
