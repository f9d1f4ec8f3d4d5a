package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aizenshtat/autonomous-coding-agent/internal/gitops"
	"github.com/aizenshtat/autonomous-coding-agent/internal/health"
	"github.com/aizenshtat/autonomous-coding-agent/internal/reconcile"
	"github.com/aizenshtat/autonomous-coding-agent/internal/session"
	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
)

type harness struct {
	dir      string
	store    *status.Store
	tracker  *memTracker
	launcher *fakeLauncher
	handle   *fakeHandle
	queue    string
	opts     Options
	deps     Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	store := status.NewStore(filepath.Join(dir, "health.json"), true)
	h := &harness{
		dir:     dir,
		store:   store,
		tracker: newMemTracker(),
		handle:  &fakeHandle{exitAfter: 3},
		queue:   filepath.Join(dir, "commits_queue.txt"),
	}
	h.launcher = &fakeLauncher{handle: h.handle}
	h.opts = Options{
		SessionID:         "s-test",
		Issue:             7,
		Repo:              "acme/app",
		Branch:            "agent-runtime",
		WorkDir:           dir,
		Mode:              "full_build",
		LedgerPath:        filepath.Join(dir, "tests.json"),
		HeartbeatInterval: 10 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		ReconcileSchedule: "@every 3m",
		SessionDuration:   time.Hour,
		Launch:            LaunchSpec{Command: "python", Args: []string{"/app/claude_code.py"}},
	}
	h.deps = Deps{
		Launcher:  h.launcher,
		Tracker:   h.tracker,
		Publisher: health.NewPublisher(store, "s-test", 7),
		Commits:   &fakeCommits{commits: []gitops.Commit{{SHA: "abc1234", Subject: "Add login"}}},
		Queue:     gitops.NewQueue(h.queue),
	}
	return h
}

func (h *harness) writeLedger(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(h.opts.LedgerPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) run(t *testing.T, ctx context.Context) (int, error) {
	t.Helper()
	sup, err := New(h.opts, h.deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sup.Run(ctx)
}

func TestRunCompletes(t *testing.T) {
	h := newHarness(t)
	h.writeLedger(t, `[{"feature": "login", "description": "d", "passes": true}]`)

	code, err := h.run(t, context.Background())
	if err != nil || code != 0 {
		t.Fatalf("Run() = %d, %v", code, err)
	}

	snap := h.store.Read()
	if snap.String("status") != health.StateCompleted || snap.Int("exit_code") != 0 {
		t.Errorf("snapshot = %v", snap)
	}
	if _, ok := snap.Time("last_heartbeat"); !ok {
		t.Error("no heartbeat recorded")
	}
	if snap.String("session_id") != "s-test" || snap.Int("current_issue") != 7 {
		t.Errorf("session fields = %v", snap)
	}

	// The final pass creates and closes the feature issue.
	if h.tracker.issueCount() != 1 {
		t.Errorf("issues = %d, want 1", h.tracker.issueCount())
	}

	comments := h.tracker.commentsOn(7)
	if len(comments) != 1 || !strings.Contains(comments[0], "**Commits Pushed**") || !strings.Contains(comments[0], "abc1234") {
		t.Errorf("session issue comments = %q", comments)
	}

	if st := session.ReadState(h.dir); st == nil || st.Status != "completed" {
		t.Errorf("session state = %+v", st)
	}
}

func TestRunReturnsAgentExitCode(t *testing.T) {
	h := newHarness(t)
	h.handle.code = 3

	code, err := h.run(t, context.Background())
	if err != nil || code != 3 {
		t.Fatalf("Run() = %d, %v; want 3, nil", code, err)
	}
	if got := h.store.Read().Int("exit_code"); got != 3 {
		t.Errorf("exit_code = %d", got)
	}
}

func TestRunLaunchFailure(t *testing.T) {
	h := newHarness(t)
	h.launcher.err = errLaunch

	code, err := h.run(t, context.Background())
	if code != 1 || !errors.Is(err, errLaunch) {
		t.Fatalf("Run() = %d, %v", code, err)
	}

	snap := h.store.Read()
	if snap.String("status") != health.StateError || snap.String("last_error") != ErrorLaunchFailed {
		t.Errorf("snapshot = %v", snap)
	}
	if len(h.tracker.commentsOn(7)) != 0 {
		t.Error("commit summary posted after launch failure")
	}
}

func TestRunInterrupted(t *testing.T) {
	h := newHarness(t)
	h.handle.exitAfter = 0
	h.writeLedger(t, `[{"feature": "login", "description": "d", "passes": false}]`)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	code, err := h.run(t, ctx)
	if code != ExitInterrupted || !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %d, %v", code, err)
	}
	if !h.handle.wasStopped() {
		t.Error("agent not stopped on cancellation")
	}

	snap := h.store.Read()
	if snap.String("last_error") != ErrorInterrupted {
		t.Errorf("last_error = %q", snap.String("last_error"))
	}
	// The final pass still runs with a fresh context.
	if h.tracker.issueCount() != 1 {
		t.Errorf("issues = %d, want 1", h.tracker.issueCount())
	}
}

func TestRunCountsQueuedCommits(t *testing.T) {
	h := newHarness(t)
	if err := os.WriteFile(h.queue, []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}
	h.handle.exitAfter = 4
	h.handle.onPoll = func(n int) {
		if n == 1 {
			f, err := os.OpenFile(h.queue, os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return
			}
			_, _ = f.WriteString("sha1\nsha2\n")
			_ = f.Close()
		}
	}

	if _, err := h.run(t, context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := h.store.Read()
	if got := snap.Int("total_commits"); got != 2 {
		t.Errorf("total_commits = %d, want 2", got)
	}
	if got := snap.Int("last_push_count"); got != 2 {
		t.Errorf("last_push_count = %d, want 2", got)
	}
}

func TestRunReconcilesOnSchedule(t *testing.T) {
	h := newHarness(t)
	h.writeLedger(t, `[{"feature": "login", "description": "d", "passes": false}]`)
	h.handle.exitAfter = 8

	var mu sync.Mutex
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	sup, err := New(h.opts, h.deps)
	if err != nil {
		t.Fatal(err)
	}
	// Each reading jumps a minute so the three minute schedule comes due.
	sup.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}
	h.handle.onPoll = func(n int) {
		if n == 4 {
			_ = os.WriteFile(h.opts.LedgerPath, []byte(`[{"feature": "login", "issueNumber": 100, "description": "d", "passes": true}]`), 0644)
		}
	}

	if _, err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.tracker.issueCount() != 1 {
		t.Errorf("issues = %d, want 1", h.tracker.issueCount())
	}
	if seen, ok := sup.Syncer().Reconciler().LastSeen(100); !ok || seen != 1 {
		t.Errorf("LastSeen(100) = %d, %v", seen, ok)
	}
}

func TestRunAnnouncesArtifacts(t *testing.T) {
	h := newHarness(t)
	shots := filepath.Join(h.dir, "screenshots")
	if err := os.MkdirAll(shots, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(shots, "home.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	h.writeLedger(t, `[]`)
	h.opts.ArtifactsDir = shots
	h.deps.Commits = nil

	if _, err := h.run(t, context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.store.Read().Int("total_screenshots"); got != 1 {
		t.Errorf("total_screenshots = %d, want 1", got)
	}
	comments := h.tracker.commentsOn(7)
	if len(comments) != 1 || !strings.Contains(comments[0], "home.png") {
		t.Errorf("comments = %q", comments)
	}
}

type recorder struct {
	mu       sync.Mutex
	outcomes []reconcile.Outcome
}

func (r *recorder) Record(_ context.Context, o reconcile.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func TestRunRecordsCommitSummary(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	h.deps.Recorder = rec

	if _, err := h.run(t, context.Background()); err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, o := range rec.outcomes {
		if o.Action == reconcile.ActionSummary && o.Result == reconcile.ResultSuccess {
			found = true
		}
	}
	if !found {
		t.Errorf("no commit summary outcome in %+v", rec.outcomes)
	}
}

func TestRunSkipsEmptyCommitSummary(t *testing.T) {
	h := newHarness(t)
	h.deps.Commits = &fakeCommits{}

	if _, err := h.run(t, context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(h.tracker.commentsOn(7)); n != 0 {
		t.Errorf("comments = %d, want 0", n)
	}
}

func TestNewValidation(t *testing.T) {
	h := newHarness(t)

	bad := h.opts
	bad.ReconcileSchedule = "every now and then"
	if _, err := New(bad, h.deps); err == nil {
		t.Error("New() accepted an invalid schedule")
	}

	bad = h.opts
	bad.PollInterval = 0
	if _, err := New(bad, h.deps); err == nil {
		t.Error("New() accepted a zero poll interval")
	}

	deps := h.deps
	deps.Launcher = nil
	if _, err := New(h.opts, deps); err == nil {
		t.Error("New() accepted a nil launcher")
	}
}
