package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/1broseidon/winrules/internal/config"
)

func createConfigCommand(global *GlobalFlags, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and inspect the configuration",
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and report rule warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := global.configPath()
			if err != nil {
				return err
			}
			res, err := loadEffective(path, v)
			if err != nil {
				return err
			}
			_, warnings, err := config.BuildStore(res.Config)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config: ok (%d rules)\n", len(res.Config.Rules))
			return nil
		},
	}

	var printDefaults bool
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printDefaults {
				return writeYAML(cmd.OutOrStdout(), config.DefaultConfig())
			}
			path, err := global.configPath()
			if err != nil {
				return err
			}
			res, err := loadEffective(path, v)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), res.Config)
		},
	}
	printCmd.Flags().BoolVar(&printDefaults, "defaults", false, "print built-in defaults (no files)")

	explain := &cobra.Command{
		Use:   "explain YAML.PATH",
		Short: "Show a config value and where it was set",
		Example: `  winrules config explain poll_interval
  winrules config explain rules.move-chrome.conditions.process_name`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := global.configPath()
			if err != nil {
				return err
			}
			res, err := config.LoadFromPath(path)
			if err != nil {
				return err
			}
			value, src, err := config.Explain(res, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path: %s\n", args[0])
			fmt.Fprintf(out, "source: %s\n", formatSource(src))
			fmt.Fprintln(out, "value:")
			return writeYAML(out, value)
		},
	}

	cmd.AddCommand(validate, printCmd, explain)
	return cmd
}

func writeYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceDefault:
		return "default"
	default:
		return string(src.Kind)
	}
}
