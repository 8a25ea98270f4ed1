package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-issue-loop/internal/config"
	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
	"github.com/hochfrequenz/claude-issue-loop/internal/executor"
	"github.com/hochfrequenz/claude-issue-loop/internal/history"
	"github.com/hochfrequenz/claude-issue-loop/internal/notify"
	"github.com/hochfrequenz/claude-issue-loop/internal/prioritize"
	"github.com/hochfrequenz/claude-issue-loop/internal/progress"
	"github.com/hochfrequenz/claude-issue-loop/internal/runner"
	"github.com/hochfrequenz/claude-issue-loop/internal/stop"
	"github.com/hochfrequenz/claude-issue-loop/internal/tracker"
	"github.com/hochfrequenz/claude-issue-loop/internal/vcs"
	"github.com/hochfrequenz/claude-issue-loop/internal/watch"
)

var (
	historyLimit   int
	historyShowLog bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run ISSUE",
		Short: "Run the agent against a single issue",
		Args:  cobra.ExactArgs(1),
		RunE:  runSingle,
	}
	rootCmd.AddCommand(runCmd)

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Process all labeled issues once",
		RunE:  runBatch,
	}
	rootCmd.AddCommand(batchCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll for labeled issues and process them continuously",
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	historyCmd := &cobra.Command{
		Use:   "history [ISSUE]",
		Short: "Show past runs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
	historyCmd.Flags().BoolVar(&historyShowLog, "log", false, "print the full output log")
	rootCmd.AddCommand(historyCmd)
}

func buildLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildProvider(cfg *config.Config) tracker.Provider {
	return tracker.Provider{
		Kind:            tracker.ProviderKind(cfg.Tracker.Provider),
		LinearTeamID:    cfg.Tracker.LinearTeamID,
		LinearProjectID: cfg.Tracker.LinearProjectID,
		JiraBaseURL:     cfg.Tracker.JiraBaseURL,
		JiraUsername:    cfg.Tracker.JiraUsername,
		JiraToken:       tracker.JiraTokenFromEnv(),
		JiraProjectKey:  cfg.Tracker.JiraProjectKey,
	}
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}

func buildSelector(cfg *config.Config, logger *zap.Logger) runner.Selector {
	if !cfg.Prioritizer.Enabled {
		return nil
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Info("OPENAI_API_KEY not set, prioritizer disabled")
		return nil
	}
	return prioritize.New(apiKey, cfg.Prioritizer.Model, cfg.PrioritizerTimeout(), logger)
}

func progressPath(cfg *config.Config) string {
	if cfg.General.ProgressFile == "" {
		return ""
	}
	if filepath.IsAbs(cfg.General.ProgressFile) {
		return cfg.General.ProgressFile
	}
	return filepath.Join(cfg.General.RepoPath, cfg.General.ProgressFile)
}

func buildRunner(cfg *config.Config, svc tracker.Service, logger *zap.Logger) (*runner.Runner, *history.Store, error) {
	store, err := history.New(cfg.General.HistoryDir)
	if err != nil {
		return nil, nil, err
	}

	agent := executor.NewClaudeExecutor(cfg.Agent.Binary, cfg.General.RepoPath, logger)
	repo := vcs.NewGitRepo(cfg.General.RepoPath, logger)

	r := runner.New(agent, svc, repo, store, runner.Options{
		MaxIterations:       cfg.Agent.MaxIterations,
		AgentTimeout:        cfg.AgentTimeout(),
		Model:               cfg.Agent.Model,
		ProgressPath:        progressPath(cfg),
		ReviewState:         cfg.Tracker.ReviewState,
		MaxRateLimitRetries: cfg.Agent.MaxRateLimitRetries,
	}, logger)

	return r, store, nil
}

// startProgressWatcher logs agent writes to the progress file while a
// run is active. Feedback only; failures just disable the watcher.
func startProgressWatcher(ctx context.Context, cfg *config.Config, logger *zap.Logger) func() {
	path := progressPath(cfg)
	if path == "" {
		return func() {}
	}

	w, err := progress.NewWatcher(path, func(p string) {
		if status, err := progress.ReadStatus(p); err == nil && status != "" {
			logger.Info("progress updated", zap.String("status", status))
		} else {
			logger.Info("progress updated")
		}
	})
	if err != nil {
		logger.Warn("progress watcher unavailable", zap.Error(err))
		return func() {}
	}
	w.Start(ctx)
	return w.Stop
}

// installStopHandler wires the interrupt signal into the two-stage stop
// protocol. The first signal finishes the current issue (or exits right
// away when idle); the second one exits immediately with code 130.
func installStopHandler(ctrl *stop.Controller, cancel context.CancelFunc, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		for range sigCh {
			switch ctrl.RequestStop() {
			case stop.StageForced:
				logger.Warn("force stop requested, exiting")
				os.Exit(130)
			default:
				if ctrl.Processing() {
					logger.Info("finishing the current issue, press Ctrl-C again to force quit")
				} else {
					logger.Info("stopping")
					cancel()
				}
			}
		}
	}()
}

func runSingle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	svc, err := tracker.New(buildProvider(cfg), logger)
	if err != nil {
		return err
	}

	r, store, err := buildRunner(cfg, svc, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl := stop.NewController()
	installStopHandler(ctrl, cancel, logger)

	issue, err := svc.FetchIssueByID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetching issue %s: %w", args[0], err)
	}

	defer startProgressWatcher(ctx, cfg, logger)()

	ctrl.SetProcessing(true)
	res := r.Run(ctx, issue)
	ctrl.SetProcessing(false)

	if err := buildNotifier(cfg).Send(notify.ForRunResult(res)); err != nil {
		logger.Warn("failed to send notification", zap.Error(err))
	}

	if res.Status == domain.RunError {
		return fmt.Errorf("run failed: %s", res.Error)
	}
	fmt.Printf("%s: %s after %d iteration(s)\n", res.Issue.Identifier, res.Status, res.Iterations)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	svc, err := tracker.New(buildProvider(cfg), logger)
	if err != nil {
		return err
	}

	r, store, err := buildRunner(cfg, svc, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl := stop.NewController()
	installStopHandler(ctrl, cancel, logger)

	provider := buildProvider(cfg)
	issues, err := svc.FetchIssuesByLabel(ctx, provider.TeamScope(), cfg.Tracker.Label)
	if err != nil {
		return fmt.Errorf("fetching issues: %w", err)
	}

	var queue []domain.Issue
	for _, iss := range issues {
		if iss.IsActionable() {
			queue = append(queue, iss)
		}
	}
	if len(queue) == 0 {
		fmt.Println("No actionable issues found")
		return nil
	}

	defer startProgressWatcher(ctx, cfg, logger)()

	batch := runner.NewBatch(r, buildSelector(cfg, logger), ctrl, buildNotifier(cfg), logger)
	sum := batch.Run(ctx, queue)

	printSummary(sum)
	if sum.Failed > 0 {
		return fmt.Errorf("%d run(s) failed", sum.Failed)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	svc, err := tracker.New(buildProvider(cfg), logger)
	if err != nil {
		return err
	}

	r, store, err := buildRunner(cfg, svc, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl := stop.NewController()
	installStopHandler(ctrl, cancel, logger)

	opts := watch.Options{
		Scope:    buildProvider(cfg).TeamScope(),
		Label:    cfg.Tracker.Label,
		Interval: cfg.PollInterval(),
	}
	if cfg.Watch.WindowCron != "" {
		schedule, err := cron.ParseStandard(cfg.Watch.WindowCron)
		if err != nil {
			return fmt.Errorf("parsing watch.window_cron: %w", err)
		}
		opts.Window = schedule
	}

	defer startProgressWatcher(ctx, cfg, logger)()

	batch := runner.NewBatch(r, buildSelector(cfg, logger), ctrl, buildNotifier(cfg), logger)
	poller := watch.New(svc, batch, ctrl, opts, logger)

	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.New(cfg.General.HistoryDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		entry, err := store.LatestRun(args[0])
		if err != nil {
			return fmt.Errorf("no history for %s: %w", args[0], err)
		}
		fmt.Printf("%s: %s, %d iteration(s), %s, finished %s\n",
			entry.Identifier, entry.Status, entry.Iterations,
			(time.Duration(entry.TotalMs) * time.Millisecond).Round(time.Second),
			humanize.Time(entry.CompletedAt))
		if entry.Error != "" {
			fmt.Printf("error: %s\n", entry.Error)
		}
		if historyShowLog {
			log, err := store.OutputLog(args[0])
			if err != nil {
				return err
			}
			fmt.Print(log)
		}
		return nil
	}

	entries, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ISSUE\tSTATUS\tITERATIONS\tDURATION\tFINISHED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.Identifier, e.Status, e.Iterations,
			(time.Duration(e.TotalMs) * time.Millisecond).Round(time.Second),
			humanize.Time(e.CompletedAt))
	}
	w.Flush()
	return nil
}

func printSummary(sum runner.Summary) {
	fmt.Printf("Batch finished: %d completed, %d exhausted, %d failed, %d skipped (%s total)\n",
		sum.Completed, sum.Exhausted, sum.Failed, sum.Skipped,
		sum.TotalDuration.Round(time.Second))
	if sum.Stopped {
		fmt.Println("Stopped early by request")
	}
}
