package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/1broseidon/winrules/internal/config"
)

// newSettingsFrom prepares v to read WINRULES_* environment variables.
// Flag names map to variables by upper-casing and replacing dashes,
// so --poll-interval becomes WINRULES_POLL_INTERVAL.
func newSettingsFrom(v *viper.Viper) *viper.Viper {
	v.SetEnvPrefix("WINRULES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// addSettingsFlags registers the runtime overrides on cmd and binds them.
func addSettingsFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (auto, console, json)")
	f.String("log-file", "", "also write JSON logs to this rotated file")
	f.Duration("poll-interval", 0, "window/process polling interval")
	f.Duration("coalesce-window", 0, "move-event coalescing window")
	f.Bool("metrics", false, "serve Prometheus metrics")
	f.String("metrics-listen", "", "metrics listen address")
	f.Bool("ipc", true, "serve the control socket")
	f.Bool("watch-config", true, "reload rules when the config file changes")

	for _, name := range settingsFlags {
		_ = v.BindPFlag(name, f.Lookup(name))
	}
}

// applySettings overlays flags and environment onto cfg. Only values that
// were explicitly set win over the file.
func applySettings(v *viper.Viper, cfg *config.Config) {
	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("log-format") {
		cfg.Logging.Format = v.GetString("log-format")
	}
	if v.IsSet("log-file") {
		cfg.Logging.File = v.GetString("log-file")
	}
	if v.IsSet("poll-interval") {
		cfg.PollInterval = v.GetDuration("poll-interval")
	}
	if v.IsSet("coalesce-window") {
		cfg.CoalesceWindow = v.GetDuration("coalesce-window")
	}
	if v.IsSet("metrics") {
		cfg.Metrics.Enabled = v.GetBool("metrics")
	}
	if v.IsSet("metrics-listen") {
		cfg.Metrics.Listen = v.GetString("metrics-listen")
	}
	if v.IsSet("ipc") {
		cfg.IPC.Enabled = v.GetBool("ipc")
	}
	if v.IsSet("watch-config") {
		cfg.WatchConfig = v.GetBool("watch-config")
	}
}

// loadEffective loads path and applies the runtime overrides.
func loadEffective(path string, v *viper.Viper) (*config.LoadResult, error) {
	res, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	applySettings(v, res.Config)
	if err := res.Config.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}
