package daemon

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/config"
	"github.com/1broseidon/winrules/internal/event"
	"github.com/1broseidon/winrules/internal/ipc"
	"github.com/1broseidon/winrules/internal/monitor"
	"github.com/1broseidon/winrules/internal/platform"
	"github.com/1broseidon/winrules/internal/procs"
	"github.com/1broseidon/winrules/internal/rules"
)

const chromeRules = `
rules:
  - name: move-chrome
    conditions:
      process_name: chrome
    actions:
      - type: move
        params: {x: 0, y: 0}
  - name: close-spam
    events: [window_created]
    conditions:
      process_name: spam
    actions:
      - type: close
`

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.IPC.Enabled = false
	cfg.WatchConfig = false
	cfg.Rules = []config.RuleConfig{
		{
			Name:       "move-chrome",
			Enabled:    true,
			Priority:   rules.DefaultPriority,
			Conditions: map[string]any{"process_name": "chrome"},
			Actions:    []rules.ActionSpec{{Type: "move", Params: map[string]any{"x": 0, "y": 0}}},
		},
		{
			Name:       "close-spam",
			Enabled:    true,
			Priority:   rules.DefaultPriority,
			Events:     []string{"window_created"},
			Conditions: map[string]any{"process_name": "spam"},
			Actions:    []rules.ActionSpec{{Type: "close"}},
		},
	}
	return cfg
}

func created(id platform.WindowID, pid int, title string) monitor.Signal {
	return monitor.Signal{
		Kind:   event.WindowCreated,
		Window: id,
		PID:    pid,
		Title:  title,
		Bounds: platform.Rect{X: 100, Y: 100, Width: 800, Height: 600},
		At:     time.Now(),
	}
}

var _ = Describe("Daemon", func() {
	var (
		backend *fakeBackend
		table   *fakeProcs
		source  *chanSource
		cfg     *config.Config
		path    string
		d       *Daemon
		ctx     context.Context
		cancel  context.CancelFunc
	)

	newDaemon := func() *Daemon {
		dm, err := New(Options{
			ConfigPath: path,
			Config:     cfg,
			Backend:    backend,
			Processes:  table,
			Source:     source,
			Logger:     zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		return dm
	}

	send := func(sig monitor.Signal) {
		Eventually(source.in).Should(BeSent(sig))
	}

	BeforeEach(func() {
		backend = newFakeBackend()
		table = newFakeProcs(map[int]string{100: "chrome", 200: "spam", 300: "xterm"})
		source = newChanSource()
		cfg = testConfig()
		path = ""
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		if d != nil {
			d.Stop()
			d = nil
		}
		cancel()
	})

	Context("initialization", func() {
		It("refuses to start without rules", func() {
			cfg.Rules = nil
			d = newDaemon()
			Expect(d.Initialize()).To(MatchError(ErrNoRules))
		})

		It("rejects missing collaborators", func() {
			_, err := New(Options{Config: cfg, Processes: table})
			Expect(err).To(HaveOccurred())
			_, err = New(Options{Config: cfg, Backend: backend})
			Expect(err).To(HaveOccurred())
		})

		It("seeds window state from the backend", func() {
			backend.add(platform.Window{ID: 3, PID: 300, Title: "shell", Bounds: platform.Rect{Width: 640, Height: 480}})
			d = newDaemon()
			Expect(d.Initialize()).To(Succeed())

			windows := d.Windows()
			Expect(windows).To(HaveLen(1))
			Expect(windows[0].Handle).To(Equal(platform.WindowID(3)))
			Expect(windows[0].ProcessName).To(Equal("xterm"))
			Expect(windows[0].Monitor).To(Equal(0))
		})

		It("fails to start when the subscription cannot be established", func() {
			d, _ = New(Options{Config: cfg, Backend: backend, Processes: table, Source: failingSource{}})
			Expect(d.Start(ctx)).To(MatchError(ContainSubstring("cannot open display")))
			Expect(d.IsRunning()).To(BeFalse())
		})
	})

	Context("when running", func() {
		BeforeEach(func() {
			d = newDaemon()
			Expect(d.Start(ctx)).To(Succeed())
		})

		It("moves a matching window and keeps its size", func() {
			backend.add(platform.Window{ID: 7, PID: 100, Bounds: platform.Rect{X: 100, Y: 100, Width: 800, Height: 600}})
			send(created(7, 100, "New Tab"))

			Eventually(backend.Calls).Should(ContainElement("move_resize 7 0,0 800x600"))
			Eventually(func() uint64 {
				return d.Statistics().RuleExecutionCounts["move-chrome"]
			}).Should(Equal(uint64(1)))

			stats := d.Statistics()
			Expect(stats.TotalEventsProcessed).To(BeNumerically(">=", 1))
			Expect(stats.ActionFailures).NotTo(HaveKey("move-chrome"))
		})

		It("counts failed actions against the rule", func() {
			backend.closeErr = os.ErrPermission
			backend.add(platform.Window{ID: 9, PID: 200})
			send(created(9, 200, "buy now"))

			Eventually(func() uint64 {
				return d.Statistics().ActionFailures["close-spam"]
			}).Should(Equal(uint64(1)))
			Expect(d.Statistics().RuleExecutionCounts["close-spam"]).To(Equal(uint64(1)))
			Expect(backend.Calls()).To(ContainElement("close 9"))
		})

		It("skips rules whose event list excludes the kind", func() {
			backend.add(platform.Window{ID: 9, PID: 200})
			send(monitor.Signal{Kind: event.WindowActivated, Window: 9, PID: 200, At: time.Now()})

			Eventually(func() uint64 { return d.Statistics().TotalEventsProcessed }).Should(Equal(uint64(1)))
			Expect(backend.Calls()).NotTo(ContainElement("close 9"))
		})

		It("rejects a second start", func() {
			Expect(d.Start(ctx)).To(MatchError(monitor.ErrAlreadyRunning))
			Expect(d.IsRunning()).To(BeTrue())

			d.Stop()
			Expect(d.IsRunning()).To(BeFalse())
			Expect(d.Status().MonitorRunning).To(BeFalse())
			d.Stop()
		})

		It("stops matching a disabled rule", func() {
			Expect(d.SetRuleEnabled("move-chrome", false)).To(Succeed())
			backend.add(platform.Window{ID: 8, PID: 100, Bounds: platform.Rect{X: 5, Y: 5, Width: 300, Height: 200}})
			send(created(8, 100, "Docs"))

			Eventually(func() uint64 { return d.Statistics().TotalEventsProcessed }).Should(Equal(uint64(1)))
			Consistently(backend.Calls, 100*time.Millisecond).ShouldNot(ContainElement(HavePrefix("move_resize 8")))
			Expect(d.Status().EnabledRules).To(Equal(1))

			Expect(d.SetRuleEnabled("nope", true)).To(HaveOccurred())
		})

		It("clears statistics on request", func() {
			backend.add(platform.Window{ID: 7, PID: 100, Bounds: platform.Rect{Width: 10, Height: 10}})
			send(created(7, 100, "x"))
			Eventually(func() uint64 { return d.Statistics().TotalEventsProcessed }).Should(Equal(uint64(1)))

			d.ClearStatistics()
			stats := d.Statistics()
			Expect(stats.TotalEventsProcessed).To(BeZero())
			Expect(stats.RuleExecutionCounts).To(BeEmpty())
			Expect(stats.CurrentWindowsTracked).To(Equal(1))
		})

		It("keeps the live pipeline when initialized again", func() {
			Expect(d.Initialize()).To(Succeed())

			backend.add(platform.Window{ID: 7, PID: 100, Bounds: platform.Rect{X: 100, Y: 100, Width: 800, Height: 600}})
			send(created(7, 100, "New Tab"))

			Eventually(func() uint64 {
				return d.Statistics().RuleExecutionCounts["move-chrome"]
			}).Should(Equal(uint64(1)))
			Expect(d.Statistics().CurrentWindowsTracked).To(Equal(1))
			Expect(d.Status().MonitorRunning).To(BeTrue())

			d.Stop()
			Expect(d.Status().MonitorRunning).To(BeFalse())
			Expect(d.Status().EngineRunning).To(BeFalse())
		})

		It("reports a monitor whose event source closed", func() {
			source.drop()

			Eventually(d.IsRunning).Should(BeFalse())
			st := d.Status()
			Expect(st.DaemonRunning).To(BeFalse())
			Expect(st.MonitorRunning).To(BeFalse())
			Expect(st.MonitorError).To(ContainSubstring("event source closed"))
		})

		It("lists rules in evaluation order with counters", func() {
			infos := d.Rules()
			Expect(infos).To(HaveLen(2))
			Expect(infos[0].Name).To(Equal("move-chrome"))
			Expect(infos[1].Events).To(Equal([]string{"window_created"}))
		})
	})

	Context("reload", func() {
		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "config.yaml")
			Expect(os.WriteFile(path, []byte(chromeRules), 0o644)).To(Succeed())
			res, err := config.LoadFromPath(path)
			Expect(err).NotTo(HaveOccurred())
			cfg = res.Config
			cfg.IPC.Enabled = false
			cfg.WatchConfig = false
			d = newDaemon()
			Expect(d.Start(ctx)).To(Succeed())
		})

		It("swaps in the new rules", func() {
			Expect(os.WriteFile(path, []byte(`
rules:
  - name: only
    conditions: {window_class: Gimp}
    actions: [{type: minimize}]
`), 0o644)).To(Succeed())

			data, err := d.Reload()
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Rules).To(Equal(1))
			Expect(d.Rules()[0].Name).To(Equal("only"))
			Expect(d.Status().LastReloadError).To(BeEmpty())
		})

		It("keeps the current rules when the file is broken", func() {
			Expect(os.WriteFile(path, []byte("rules: [\n"), 0o644)).To(Succeed())

			_, err := d.Reload()
			Expect(err).To(HaveOccurred())
			Expect(d.Rules()).To(HaveLen(2))
			Expect(d.Status().LastReloadError).NotTo(BeEmpty())
		})

		It("treats an emptied file as an error", func() {
			Expect(os.WriteFile(path, []byte("log_level: debug\n"), 0o644)).To(Succeed())

			_, err := d.Reload()
			Expect(err).To(MatchError(ErrNoRules))
			Expect(d.Rules()).To(HaveLen(2))
		})
	})

	Context("with the default poller", func() {
		It("turns new windows into rule executions", func() {
			cfg.PollInterval = monitor.MinPollInterval
			source = nil
			d, _ = New(Options{Config: cfg, Backend: backend, Processes: table, Logger: zap.NewNop()})
			Expect(d.Start(ctx)).To(Succeed())

			backend.add(platform.Window{ID: 11, PID: 100, Title: "chrome", Bounds: platform.Rect{X: 50, Y: 60, Width: 400, Height: 300}})

			Eventually(backend.Calls, 2*time.Second).Should(ContainElement("move_resize 11 0,0 400x300"))
			Expect(d.Status().PollInterval).To(Equal(monitor.MinPollInterval))
		})
	})

	Context("over IPC", func() {
		BeforeEach(func() {
			dir, err := os.MkdirTemp("", "wrd")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)
			Expect(os.Setenv("WINRULES_SOCKET", filepath.Join(dir, "d.sock"))).To(Succeed())
			DeferCleanup(os.Unsetenv, "WINRULES_SOCKET")

			cfg.IPC.Enabled = true
			d = newDaemon()
			Expect(d.Start(ctx)).To(Succeed())
		})

		It("answers status and toggles rules", func() {
			client := ipc.NewClient()
			Expect(client.Ping()).To(Succeed())

			st, err := client.GetStatus()
			Expect(err).NotTo(HaveOccurred())
			Expect(st.DaemonRunning).To(BeTrue())
			Expect(st.RuleCount).To(Equal(2))

			Expect(client.SetRuleEnabled("close-spam", false)).To(Succeed())
			infos, err := client.ListRules()
			Expect(err).NotTo(HaveOccurred())
			Expect(infos[1].Enabled).To(BeFalse())
		})

		It("reports reload failure without a config file", func() {
			_, err := ipc.NewClient().Reload()
			Expect(err).To(MatchError(ContainSubstring("without a config file")))
		})
	})
})

var _ = Describe("ConfigWatcher", func() {
	It("reports a write to a watched file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "config.yaml")
		Expect(os.WriteFile(path, []byte("rules: []\n"), 0o644)).To(Succeed())

		cw, err := NewConfigWatcher([]string{path}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		cw.debounce = 20 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		requests := make(chan string, 1)
		go cw.Run(ctx, requests)

		Expect(os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644)).To(Succeed())
		Consistently(requests, 100*time.Millisecond).ShouldNot(Receive())

		Expect(os.WriteFile(path, []byte("rules: []\nlog_level: debug\n"), 0o644)).To(Succeed())
		Eventually(requests, time.Second).Should(Receive(Equal("config file updated")))
	})
})

var _ = Describe("Reconciler", func() {
	It("prunes expired process names", func() {
		resolver := procs.NewResolver(newFakeProcs(map[int]string{1: "init"}), time.Nanosecond)
		Expect(resolver.Name(1)).To(Equal("init"))
		time.Sleep(time.Millisecond)

		rec := NewReconciler(ReconcilerConfig{}, resolver, nil)
		Expect(rec.ReconcileNow()).To(Equal(1))
		_, _, size := resolver.Stats()
		Expect(size).To(BeZero())
	})
})
