package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/1broseidon/winrules/internal/engine"
	"github.com/1broseidon/winrules/internal/ipc"
)

func createStatusCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ipc.NewClient().GetStatus()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStatus(w io.Writer, st *ipc.StatusData) {
	fmt.Fprintf(w, "daemon_running:   %v\n", st.DaemonRunning)
	fmt.Fprintf(w, "monitor_running:  %v\n", st.MonitorRunning)
	if st.MonitorError != "" {
		fmt.Fprintf(w, "monitor_error:    %s\n", st.MonitorError)
	}
	fmt.Fprintf(w, "engine_running:   %v\n", st.EngineRunning)
	fmt.Fprintf(w, "uptime_seconds:   %d\n", st.UptimeSeconds)
	if st.ConfigPath != "" {
		fmt.Fprintf(w, "config:           %s\n", st.ConfigPath)
	}
	fmt.Fprintf(w, "rules:            %d (%d enabled)\n", st.RuleCount, st.EnabledRules)
	fmt.Fprintf(w, "windows_tracked:  %d\n", st.WindowsTracked)
	if st.PollInterval > 0 {
		fmt.Fprintf(w, "poll_interval:    %s\n", st.PollInterval)
	}
	fmt.Fprintf(w, "events_delivered: %d (%d coalesced)\n", st.EventsDelivered, st.EventsCoalesced)
	if !st.LastReload.IsZero() {
		fmt.Fprintf(w, "last_reload:      %s\n", st.LastReload.Format(time.RFC3339))
	}
	if st.LastReloadError != "" {
		fmt.Fprintf(w, "last_reload_error: %s\n", st.LastReloadError)
	}
}

func createStatsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show rule engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := ipc.NewClient().GetStats()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStats(w io.Writer, s *engine.Statistics) {
	fmt.Fprintf(w, "events_processed: %d\n", s.TotalEventsProcessed)
	fmt.Fprintf(w, "windows_tracked:  %d\n", s.CurrentWindowsTracked)
	fmt.Fprintf(w, "enabled_rules:    %d\n", s.EnabledRules)
	if len(s.RuleExecutionCounts) == 0 && len(s.ActionFailures) == 0 {
		return
	}

	names := make(map[string]struct{})
	for n := range s.RuleExecutionCounts {
		names[n] = struct{}{}
	}
	for n := range s.ActionFailures {
		names[n] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tEXECUTIONS\tFAILURES")
	for _, n := range sorted {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", n, s.RuleExecutionCounts[n], s.ActionFailures[n])
	}
	_ = tw.Flush()
}

func createRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List and toggle rules in the running daemon",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := ipc.NewClient().ListRules()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			printRules(cmd.OutOrStdout(), infos)
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(list, toggleCommand("enable", true), toggleCommand("disable", false))
	return cmd
}

func toggleCommand(verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " NAME",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a rule until the next reload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ipc.NewClient().SetRuleEnabled(args[0], enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rule %s %sd\n", args[0], verb)
			return nil
		},
	}
}

func printRules(w io.Writer, infos []ipc.RuleInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENABLED\tPRIORITY\tEVENTS\tACTIONS\tEXECUTIONS\tFAILURES")
	for _, r := range infos {
		events := "*"
		if len(r.Events) > 0 {
			events = strings.Join(r.Events, ",")
		}
		actions := make([]string, 0, len(r.Actions))
		for _, a := range r.Actions {
			actions = append(actions, a.Type)
		}
		fmt.Fprintf(tw, "%s\t%v\t%d\t%s\t%s\t%d\t%d\n",
			r.Name, r.Enabled, r.Priority, events, strings.Join(actions, ","), r.Executions, r.Failures)
	}
	_ = tw.Flush()
}

func createWindowsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "List windows tracked by the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			windows, err := ipc.NewClient().ListWindows()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), windows)
			}
			printWindows(cmd.OutOrStdout(), windows, titleWidth(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printWindows(w io.Writer, windows []engine.Window, maxTitle int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tPID\tPROCESS\tMONITOR\tGEOMETRY\tTITLE")
	for _, win := range windows {
		title := win.Title
		if r := []rune(title); maxTitle > 0 && len(r) > maxTitle {
			title = string(r[:maxTitle-1]) + "…"
		}
		b := win.Bounds
		fmt.Fprintf(tw, "0x%x\t%d\t%s\t%d\t%dx%d+%d+%d\t%s\n",
			uint32(win.Handle), win.PID, win.ProcessName, win.Monitor, b.Width, b.Height, b.X, b.Y, title)
	}
	_ = tw.Flush()
}

// titleWidth returns how many title characters fit on a terminal, or zero
// for no truncation when w is not a terminal.
func titleWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	if rest := width - 60; rest > 10 {
		return rest
	}
	return 10
}

func createReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload rules from the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := ipc.NewClient().Reload()
			if err != nil {
				return fmt.Errorf("reload failed, previous rules remain active: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, w := range data.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			fmt.Fprintf(out, "reloaded %d rules (%d enabled)\n", data.Rules, data.Enabled)
			return nil
		},
	}
}

func createClearStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-stats",
		Short: "Reset the rule engine counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ipc.NewClient().ClearStats(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "statistics cleared")
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
