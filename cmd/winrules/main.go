package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/1broseidon/winrules/internal/config"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// configPath returns the --config value or the default location.
func (g *GlobalFlags) configPath() (string, error) {
	if g.ConfigPath != "" {
		return g.ConfigPath, nil
	}
	return config.DefaultConfigPath()
}

func buildRoot() *cobra.Command {
	global := &GlobalFlags{}
	v := newSettings()

	root := &cobra.Command{
		Use:   "winrules",
		Short: "Rule-driven window and process automation",
		Long: `winrules watches window and process lifecycle events and applies
user-defined rules: move, resize, minimize, close or focus matching windows,
or terminate matching processes.

Examples:
  winrules daemon                       # run in the foreground
  winrules status
  winrules rules list
  winrules rules disable close-popups
  winrules config explain rules.move-chrome.actions`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&global.ConfigPath, "config", "", "path to config file (default ~/.config/winrules/config.yaml)")

	root.AddCommand(
		createDaemonCommand(global, v),
		createStatusCommand(),
		createStatsCommand(),
		createRulesCommand(),
		createWindowsCommand(),
		createReloadCommand(),
		createClearStatsCommand(),
		createConfigCommand(global, v),
		createMCPCommand(),
	)
	return root
}

// settingsFlags are the daemon flags that viper layers over file values.
var settingsFlags = []string{
	"log-level",
	"log-format",
	"log-file",
	"poll-interval",
	"coalesce-window",
	"metrics",
	"metrics-listen",
	"ipc",
	"watch-config",
}

func newSettings() *viper.Viper {
	return newSettingsFrom(viper.New())
}
