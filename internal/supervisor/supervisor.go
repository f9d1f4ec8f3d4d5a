// Package supervisor runs the build agent and keeps the status file and the
// issue tracker in step with it until the agent exits.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
	"github.com/aizenshtat/autonomous-coding-agent/internal/gitops"
	"github.com/aizenshtat/autonomous-coding-agent/internal/health"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
	"github.com/aizenshtat/autonomous-coding-agent/internal/reconcile"
	"github.com/aizenshtat/autonomous-coding-agent/internal/session"
)

// Error kinds recorded in the status file.
const (
	ErrorLaunchFailed = "agent_launch_failed"
	ErrorInterrupted  = "interrupted"
)

// ExitInterrupted is returned by Run when ctx is cancelled.
const ExitInterrupted = 130

const (
	commitLogDepth   = 20
	finalPassTimeout = 2 * time.Minute
)

// Options configure one supervised session.
type Options struct {
	SessionID string
	Issue     int
	// Repo is the owner/name the agent pushes to.
	Repo    string
	Branch  string
	WorkDir string
	Mode    string

	LedgerPath   string
	ArtifactsDir string
	Resume       bool

	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	// ReconcileSchedule is a cron spec or descriptor, e.g. "@every 3m".
	ReconcileSchedule string
	SessionDuration   time.Duration

	Launch LaunchSpec
}

// CommitLog lists recent commits of the workspace.
type CommitLog interface {
	RecentCommits(ctx context.Context, n int) ([]gitops.Commit, error)
}

// Deps are the collaborators of a Supervisor. Recorder, Commits, Queue and
// Usage are optional.
type Deps struct {
	Launcher  Launcher
	Tracker   reconcile.Tracker
	Publisher *health.Publisher
	Recorder  reconcile.Recorder
	Commits   CommitLog
	Queue     *gitops.Queue
	Usage     func() health.Usage
}

// Supervisor owns all mutable state of a run. Reconciliation state is only
// touched from the poll goroutine.
type Supervisor struct {
	opts     Options
	deps     Deps
	schedule cron.Schedule
	syncer   *reconcile.Syncer
	now      func() time.Time
	log      *slog.Logger
}

// New validates opts and builds the reconciliation pipeline.
func New(opts Options, deps Deps) (*Supervisor, error) {
	if deps.Launcher == nil || deps.Tracker == nil || deps.Publisher == nil {
		return nil, errors.New("supervisor requires a launcher, tracker and publisher")
	}
	if opts.HeartbeatInterval <= 0 || opts.PollInterval <= 0 {
		return nil, fmt.Errorf("invalid intervals: heartbeat %s, poll %s", opts.HeartbeatInterval, opts.PollInterval)
	}
	schedule, err := cron.ParseStandard(opts.ReconcileSchedule)
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", opts.ReconcileSchedule, err)
	}

	s := &Supervisor{
		opts:     opts,
		deps:     deps,
		schedule: schedule,
		now:      time.Now,
		log:      logging.WithSession(opts.SessionID).With(slog.String("component", "supervisor")),
	}

	syncOpts := []reconcile.SyncerOption{
		reconcile.WithArtifactHook(func(n int) { deps.Publisher.ArtifactsUploaded(n) }),
	}
	if deps.Recorder != nil {
		syncOpts = append(syncOpts, reconcile.WithRecorder(deps.Recorder))
	}
	s.syncer = reconcile.NewSyncer(deps.Tracker, reconcile.Config{
		LedgerPath:   opts.LedgerPath,
		ArtifactsDir: opts.ArtifactsDir,
		SessionIssue: opts.Issue,
	}, syncOpts...)
	return s, nil
}

// Syncer exposes the reconciliation pipeline.
func (s *Supervisor) Syncer() *reconcile.Syncer { return s.syncer }

// Run launches the agent and supervises it until it exits or ctx is
// cancelled. It returns the agent exit code, 1 on launch failure or
// ExitInterrupted on cancellation.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	start := s.now()
	ctx = logging.ContextWithSession(ctx, s.opts.SessionID)
	pub := s.deps.Publisher

	pub.SessionStarted(s.opts.Mode)
	s.writeState("running")

	if s.opts.Resume {
		if err := s.syncer.Resume(ctx); err != nil {
			s.log.Warn("Failed to resume artifact history", slog.Any("error", err))
		}
	}
	if s.deps.Queue != nil {
		if err := s.deps.Queue.Prime(); err != nil {
			s.log.Warn("Failed to read commit queue", slog.Any("error", err))
		}
	}

	handle, err := s.deps.Launcher.Launch(ctx, s.opts.Launch)
	if err != nil {
		s.log.Error("Agent launch failed", slog.Any("error", err))
		pub.Error(ErrorLaunchFailed)
		s.writeState("error")
		return 1, fmt.Errorf("failed to launch agent: %w", err)
	}
	s.log.Info("Agent started", slog.Int("pid", handle.PID()), slog.String("mode", s.opts.Mode))

	g, gctx := errgroup.WithContext(ctx)
	hbCtx, stopHeartbeat := context.WithCancel(gctx)
	defer stopHeartbeat()

	exitCode := 0
	g.Go(func() error {
		s.heartbeatLoop(hbCtx, start)
		return nil
	})
	g.Go(func() error {
		defer stopHeartbeat()
		code, err := s.pollLoop(gctx, handle, start)
		exitCode = code
		return err
	})
	runErr := g.Wait()

	// The final pass and summary must run even when ctx is already cancelled.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalPassTimeout)
	defer cancel()
	s.reconcile(finalCtx)
	s.postCommitSummary(finalCtx)

	duration := s.now().Sub(start).Seconds()
	if runErr != nil {
		s.log.Warn("Supervision interrupted", slog.Any("error", runErr))
		pub.Error(ErrorInterrupted)
		s.writeState("interrupted")
		return ExitInterrupted, runErr
	}

	pub.Completed(exitCode, duration)
	s.writeState("completed")
	s.log.Info("Agent completed", slog.Int("exit_code", exitCode), slog.Float64("duration_seconds", duration))
	return exitCode, nil
}

func (s *Supervisor) heartbeatLoop(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		s.beat(start)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) beat(start time.Time) {
	elapsed := s.now().Sub(start)
	remaining := s.opts.SessionDuration - elapsed
	if remaining < 0 {
		remaining = 0
	}

	var usage health.Usage
	if s.deps.Usage != nil {
		usage = s.deps.Usage()
	}
	s.deps.Publisher.Progress(elapsed.Hours(), remaining.Hours(), usage)
	s.deps.Publisher.Heartbeat()
}

// pollLoop returns the exit code once the agent exits. On cancellation it
// stops the agent and returns ctx's error.
func (s *Supervisor) pollLoop(ctx context.Context, handle Handle, start time.Time) (int, error) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	next := s.schedule.Next(start)
	for {
		select {
		case <-ctx.Done():
			if err := handle.Stop(); err != nil {
				s.log.Warn("Failed to stop agent", slog.Any("error", err))
			}
			return -1, ctx.Err()
		case <-ticker.C:
		}

		state, code := handle.Poll()
		s.drainCommits()

		if now := s.now(); !now.Before(next) {
			s.reconcile(ctx)
			next = s.schedule.Next(now)
		}

		if state == StateExited {
			return code, nil
		}
	}
}

func (s *Supervisor) drainCommits() {
	if s.deps.Queue == nil {
		return
	}
	fresh, err := s.deps.Queue.Drain()
	if err != nil {
		s.log.Warn("Failed to read commit queue", slog.Any("error", err))
		return
	}
	if len(fresh) > 0 {
		s.deps.Publisher.CommitsPushed(len(fresh))
		s.log.Info("Commits pushed", slog.Int("count", len(fresh)))
	}
}

func (s *Supervisor) reconcile(ctx context.Context) reconcile.Report {
	report := s.syncer.Pass(ctx)
	if report.Ran {
		s.log.Debug("Reconciliation pass",
			slog.Int("records", report.Records),
			slog.Int("outcomes", len(report.Outcomes)),
			slog.Int("failures", report.Failures()),
			slog.Duration("duration", report.Duration))
	}
	return report
}

// postCommitSummary posts the recent commit list to the session issue.
func (s *Supervisor) postCommitSummary(ctx context.Context) {
	if s.deps.Commits == nil || s.opts.Issue <= 0 {
		return
	}

	o := reconcile.Outcome{Issue: s.opts.Issue, Action: reconcile.ActionSummary}
	commits, err := s.deps.Commits.RecentCommits(ctx, commitLogDepth)
	switch {
	case err != nil:
		s.log.Warn("Failed to read commit history", slog.Any("error", err))
		o.Result, o.Reason, o.Err = reconcile.ResultFailed, err.Error(), err
	case len(commits) == 0:
		o.Result, o.Reason = reconcile.ResultSkipped, "no commits"
	default:
		body := github.FormatCommitSummary(s.opts.Repo, s.opts.Branch, gitops.Onelines(commits), s.now())
		if err := s.deps.Tracker.AddComment(ctx, s.opts.Issue, body); err != nil {
			s.log.Warn("Failed to post commit summary", slog.Any("error", err))
			o.Result, o.Reason, o.Err = reconcile.ResultFailed, err.Error(), err
		} else {
			o.Result, o.Reason = reconcile.ResultSuccess, fmt.Sprintf("%d commits", min(len(commits), github.MaxSummaryCommits))
		}
	}

	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.Record(ctx, o); err != nil {
			s.log.Warn("Failed to record outcome", slog.Any("error", err))
		}
	}
}

func (s *Supervisor) writeState(state string) {
	if s.opts.WorkDir == "" {
		return
	}
	if err := session.WriteState(s.opts.WorkDir, s.opts.SessionID, s.opts.Issue, state, s.now()); err != nil {
		s.log.Warn("Failed to write session state", slog.Any("error", err))
	}
}
