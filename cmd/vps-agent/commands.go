package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
	"github.com/aizenshtat/autonomous-coding-agent/internal/banner"
	"github.com/aizenshtat/autonomous-coding-agent/internal/config"
	"github.com/aizenshtat/autonomous-coding-agent/internal/dashboard"
	"github.com/aizenshtat/autonomous-coding-agent/internal/gateway"
	"github.com/aizenshtat/autonomous-coding-agent/internal/gitops"
	"github.com/aizenshtat/autonomous-coding-agent/internal/health"
	"github.com/aizenshtat/autonomous-coding-agent/internal/journal"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
	"github.com/aizenshtat/autonomous-coding-agent/internal/reconcile"
	"github.com/aizenshtat/autonomous-coding-agent/internal/session"
	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
)

// readStore opens the status file for reading even when publishing is
// disabled in the config.
func readStore(cfg *config.Config) *status.Store {
	return status.NewStore(cfg.Metrics.File, true)
}

func newSyncCmd() *cobra.Command {
	var (
		repo  string
		issue int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass against GitHub",
		Long: `Sync reads the test ledger in the workspace, ensures every feature has an
issue, posts progress and closes finished issues. Progress counters start
empty, so current progress is posted once per feature.

With --issue, new screenshots are announced on that issue.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := logging.Init(cfg.Logging); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}

			if repo == "" {
				repo = cfg.GitHub.Repo
			}
			if repo == "" {
				return fmt.Errorf("no repository: pass --repo or set github.repo")
			}

			ghCfg := *cfg.GitHub
			if token := session.NewResolver().Lookup("github_token", session.EnvGitHubToken); token != "" {
				ghCfg.Token = token
			}
			if ghCfg.Token == "" {
				return session.ErrNoGitHubToken
			}
			tracker, err := github.NewIssueTracker(github.NewClientFromConfig(&ghCfg), repo)
			if err != nil {
				return err
			}

			var opts []reconcile.SyncerOption
			if cfg.Journal.Enabled {
				j, err := journal.Open(cfg.Journal.Path, "sync-"+time.Now().UTC().Format("20060102T150405"))
				if err != nil {
					return err
				}
				defer func() { _ = j.Close() }()
				opts = append(opts, reconcile.WithRecorder(j))
			}

			syncer := reconcile.NewSyncer(tracker, reconcile.Config{
				LedgerPath:   cfg.LedgerPath(),
				ArtifactsDir: cfg.ArtifactsDir(),
				SessionIssue: issue,
			}, opts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report := syncer.Pass(ctx)
			printSyncReport(cmd.OutOrStdout(), report)
			if n := report.Failures(); n > 0 {
				return &exitError{code: 1, err: fmt.Errorf("%d reconciliation actions failed", n)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "tracking repository (owner/name)")
	cmd.Flags().IntVar(&issue, "issue", 0, "session issue for screenshot announcements")

	return cmd
}

func printSyncReport(w io.Writer, report reconcile.Report) {
	if !report.Ran {
		fmt.Fprintf(w, "Pass skipped: %s\n", report.Reason)
		return
	}
	fmt.Fprintf(w, "Pass: %d records, %d features, %d actions (%d failed) in %s\n",
		report.Records, report.Features, len(report.Outcomes), report.Failures(),
		report.Duration.Round(time.Millisecond))
	for _, o := range report.Outcomes {
		symbol := health.StatusOK.Symbol()
		switch o.Result {
		case reconcile.ResultFailed:
			symbol = health.StatusError.Symbol()
		case reconcile.ResultSkipped:
			symbol = health.StatusDisabled.Symbol()
		}
		target := ""
		if o.Issue > 0 {
			target = fmt.Sprintf(" #%d", o.Issue)
		}
		detail := o.Reason
		if o.Err != nil {
			detail = o.Err.Error()
		}
		fmt.Fprintf(w, "  %s %s%s %s\n", symbol, o.Action, target, detail)
	}
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session status and health checks",
		Long:  `Status evaluates the status file and exits 1 when the session is unhealthy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			healthy, err := printStatus(cmd.OutOrStdout(), readStore(cfg), cfg.Supervisor.StaleAfter, time.Now(), jsonOutput)
			if err != nil {
				return err
			}
			if !healthy {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// printStatus writes the probe report for the store's snapshot and reports
// whether it is healthy.
func printStatus(w io.Writer, src gateway.StatusSource, staleAfter time.Duration, now time.Time, jsonOutput bool) (bool, error) {
	snap := src.Read()
	report := health.Evaluate(snap, now, staleAfter)

	if jsonOutput {
		data, err := json.MarshalIndent(map[string]any{
			"healthy":  report.Healthy(),
			"snapshot": snap,
			"report":   report,
		}, "", "  ")
		if err != nil {
			return false, fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return report.Healthy(), nil
	}

	banner.PrintReport(w, report)
	return report.Healthy(), nil
}

func newWatchCmd() *cobra.Command {
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the session in a terminal dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			opts := dashboard.Options{
				Source:     readStore(cfg),
				Commits:    gitops.NewRepo(cfg.Workspace.Dir),
				StaleAfter: cfg.Supervisor.StaleAfter,
				Refresh:    refresh,
				Version:    version,
			}
			if cfg.Journal.Enabled {
				if _, err := os.Stat(cfg.Journal.Path); err == nil {
					j, err := journal.Open(cfg.Journal.Path, "")
					if err != nil {
						return err
					}
					defer func() { _ = j.Close() }()
					opts.History = j
				}
			}
			return dashboard.Run(opts)
		},
	}

	cmd.Flags().DurationVar(&refresh, "refresh", 2*time.Second, "status file poll interval")

	return cmd
}

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /health, /api/v1/status, /ws and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := logging.Init(cfg.Logging); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}

			gwCfg := *cfg.Gateway
			if host != "" {
				gwCfg.Host = host
			}
			if port > 0 {
				gwCfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := gateway.NewServer(&gwCfg, readStore(cfg), gateway.WithStaleAfter(cfg.Supervisor.StaleAfter))
			fmt.Fprintf(cmd.OutOrStdout(), "Gateway: http://%s:%d\n", gwCfg.Host, gwCfg.Port)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "override gateway.host")
	cmd.Flags().IntVar(&port, "port", 0, "override gateway.port")

	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		filter journal.Filter
		purge  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled reconciliation actions",
		Long: `History lists the GitHub side effects recorded by past sessions, newest
first.

Examples:
  vps-agent history --issue 42
  vps-agent history --result failed --limit 50
  vps-agent history --purge 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return fmt.Errorf("journal is disabled in config")
			}

			j, err := journal.Open(cfg.Journal.Path, "")
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			if purge > 0 {
				n, err := j.Purge(cmd.Context(), purge)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d entries older than %s\n", n, purge)
				return nil
			}
			return printHistory(cmd.Context(), cmd.OutOrStdout(), j, filter)
		},
	}

	cmd.Flags().StringVar(&filter.SessionID, "session", "", "only this session")
	cmd.Flags().IntVar(&filter.Issue, "issue", 0, "only this issue")
	cmd.Flags().StringVar(&filter.Result, "result", "", "only this result (success, skipped, failed)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum entries")
	cmd.Flags().DurationVar(&purge, "purge", 0, "delete entries older than this instead of listing")

	return cmd
}

func printHistory(ctx context.Context, w io.Writer, src dashboard.HistorySource, filter journal.Filter) error {
	entries, err := src.History(ctx, filter)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No journal entries")
		return nil
	}

	fmt.Fprintf(w, "%-20s  %-16s  %-6s  %-16s  %-8s  %s\n", "TIME", "SESSION", "ISSUE", "ACTION", "RESULT", "DETAIL")
	for _, e := range entries {
		issue := "-"
		if e.Issue > 0 {
			issue = fmt.Sprintf("#%d", e.Issue)
		}
		detail := e.Detail
		if e.Feature != "" {
			detail = e.Feature + ": " + detail
		}
		fmt.Fprintf(w, "%-20s  %-16s  %-6s  %-16s  %-8s  %s\n",
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"), e.SessionID, issue, e.Action, e.Result, detail)
	}
	return nil
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Reset the status file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !health.NewPublisher(readStore(cfg), "", 0).Clear() {
				return fmt.Errorf("failed to clear %s", cfg.Metrics.File)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", cfg.Metrics.File)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show vps-agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vps-agent %s\n", version)
			if buildTime != "unknown" {
				fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", buildTime)
			}
		},
	}
}
