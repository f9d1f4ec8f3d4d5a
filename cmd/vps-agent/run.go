package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
	"github.com/aizenshtat/autonomous-coding-agent/internal/banner"
	"github.com/aizenshtat/autonomous-coding-agent/internal/config"
	"github.com/aizenshtat/autonomous-coding-agent/internal/gateway"
	"github.com/aizenshtat/autonomous-coding-agent/internal/gitops"
	"github.com/aizenshtat/autonomous-coding-agent/internal/health"
	"github.com/aizenshtat/autonomous-coding-agent/internal/journal"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
	"github.com/aizenshtat/autonomous-coding-agent/internal/reconcile"
	"github.com/aizenshtat/autonomous-coding-agent/internal/session"
	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
	"github.com/aizenshtat/autonomous-coding-agent/internal/supervisor"
)

func newRunCmd() *cobra.Command {
	var serve bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one supervised agent session",
		Long: `Run reads the job from AGENT_PAYLOAD, resolves credentials, launches the
build agent in the workspace and supervises it until it exits. The exit code
is the agent's exit code, 1 when it could not be launched and 130 when
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := logging.Init(cfg.Logging); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code, err := runSession(ctx, cfg, sessionEnv{
				getenv:   os.Getenv,
				resolver: session.NewResolver(),
				launcher: &supervisor.ExecLauncher{Stdout: os.Stdout, Stderr: os.Stderr},
				out:      cmd.OutOrStdout(),
			}, serve)
			if code != 0 || err != nil {
				return &exitError{code: code, err: err}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&serve, "serve", false, "also start the health gateway for the session")

	return cmd
}

// sessionEnv is the process environment runSession depends on.
type sessionEnv struct {
	getenv   func(string) string
	resolver *session.Resolver
	launcher supervisor.Launcher
	out      io.Writer
	// tracker overrides the GitHub tracker.
	tracker func(cfg *github.Config, repo string) (trackerWithName, error)
}

type trackerWithName interface {
	reconcile.Tracker
	FullName() string
}

func newGitHubTracker(cfg *github.Config, repo string) (trackerWithName, error) {
	tracker, err := github.NewIssueTracker(github.NewClientFromConfig(cfg), repo)
	if err != nil {
		return nil, err
	}
	return tracker, nil
}

// runSession performs the full entrypoint and returns the process exit code.
func runSession(ctx context.Context, cfg *config.Config, env sessionEnv, serve bool) (int, error) {
	sessionID := session.ID(env.getenv)
	store := status.NewStore(cfg.Metrics.File, cfg.Metrics.Enabled)

	payload, err := session.ParsePayload(env.getenv("AGENT_PAYLOAD"))
	if err != nil {
		return fatal(health.NewPublisher(store, sessionID, 0), "invalid_payload", err)
	}
	log := logging.WithSession(sessionID).With(slog.Int("issue", payload.IssueNumber))
	publisher := health.NewPublisher(store, sessionID, payload.IssueNumber)

	creds, err := env.resolver.Resolve()
	if err != nil {
		return fatal(publisher, credentialErrorKind(err), err)
	}

	ghCfg := *cfg.GitHub
	ghCfg.Token = creds.GitHubToken
	newTracker := env.tracker
	if newTracker == nil {
		newTracker = newGitHubTracker
	}
	tracker, err := newTracker(&ghCfg, payload.GitHubRepo)
	if err != nil {
		return fatal(publisher, "invalid_repo", fmt.Errorf("invalid github_repo: %w", err))
	}

	workDir := cfg.Workspace.Dir
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fatal(publisher, "workspace_error", fmt.Errorf("failed to create workspace: %w", err))
	}
	mode := session.DetectMode(workDir)
	featureRequest, err := session.WriteFeatureRequest(workDir, payload, cfg.Workspace.Branch, mode)
	if err != nil {
		return fatal(publisher, "feature_request_error", err)
	}

	var recorder *journal.Journal
	if cfg.Journal.Enabled {
		recorder, err = journal.Open(cfg.Journal.Path, sessionID)
		if err != nil {
			log.Warn("Journal unavailable, continuing without it", slog.Any("error", err))
			recorder = nil
		} else {
			defer func() { _ = recorder.Close() }()
		}
	}

	set, unset := creds.EnvPair()
	launch := supervisor.LaunchSpec{
		Command: cfg.Agent.Command,
		Args:    session.AgentArgs(cfg.Agent.Script, workDir, cfg.Agent.Model, cfg.Agent.Project, mode, featureRequest),
		Dir:     workDir,
		Env: []string{
			set + "=" + creds.AgentToken,
			session.EnvGitHubToken + "=" + creds.GitHubToken,
			"SESSION_ID=" + sessionID,
		},
		Unset: []string{unset},
	}

	deps := supervisor.Deps{
		Launcher:  env.launcher,
		Tracker:   tracker,
		Publisher: publisher,
		Commits:   gitops.NewRepo(workDir),
		Queue:     gitops.NewQueue(cfg.Supervisor.CommitsQueue),
	}
	if recorder != nil {
		deps.Recorder = recorder
	}

	sup, err := supervisor.New(supervisor.Options{
		SessionID:         sessionID,
		Issue:             payload.IssueNumber,
		Repo:              tracker.FullName(),
		Branch:            cfg.Workspace.Branch,
		WorkDir:           workDir,
		Mode:              string(mode),
		LedgerPath:        cfg.LedgerPath(),
		ArtifactsDir:      cfg.ArtifactsDir(),
		Resume:            payload.ResumeSession,
		HeartbeatInterval: cfg.Supervisor.HeartbeatInterval,
		PollInterval:      cfg.Supervisor.PollInterval,
		ReconcileSchedule: cfg.Supervisor.ReconcileSchedule,
		SessionDuration:   cfg.Supervisor.SessionDuration,
		Launch:            launch,
	}, deps)
	if err != nil {
		return fatal(publisher, "config_error", err)
	}

	if serve {
		srv := gateway.NewServer(cfg.Gateway, store, gateway.WithStaleAfter(cfg.Supervisor.StaleAfter))
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Warn("Gateway stopped", slog.Any("error", err))
			}
		}()
	}

	banner.StartupBanner(env.out, banner.StartupInfo{
		Version:   version,
		SessionID: sessionID,
		Repo:      tracker.FullName(),
		Issue:     payload.IssueNumber,
		Mode:      string(mode),
		Workspace: workDir,
	})

	return sup.Run(ctx)
}

func credentialErrorKind(err error) string {
	switch {
	case errors.Is(err, session.ErrNoAgentCredential):
		return "missing_agent_credential"
	case errors.Is(err, session.ErrNoGitHubToken):
		return "missing_github_token"
	}
	return "credential_error"
}

// fatal records kind on the status file before the session gives up.
func fatal(publisher *health.Publisher, kind string, err error) (int, error) {
	publisher.Error(kind)
	return 1, err
}
