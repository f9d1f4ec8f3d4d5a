package health

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
)

func newTestPublisher(t *testing.T) (*Publisher, *status.Store) {
	t.Helper()
	store := status.NewStore(filepath.Join(t.TempDir(), "health.json"), true)
	return NewPublisher(store, "vps-test", 42), store
}

func TestSessionStartedResetsSnapshot(t *testing.T) {
	p, store := newTestPublisher(t)
	store.Update(status.Snapshot{"total_commits": 9, "stale": "x"})

	if !p.SessionStarted("full_build") {
		t.Fatal("SessionStarted() = false")
	}

	snap := p.Status()
	if snap.String("status") != StateRunning {
		t.Errorf("status = %v", snap["status"])
	}
	if snap.Int("current_issue") != 42 || snap.String("session_id") != "vps-test" {
		t.Errorf("identity fields = %v / %v", snap["current_issue"], snap["session_id"])
	}
	if snap.Int("total_commits") != 0 {
		t.Errorf("total_commits = %v, want 0", snap["total_commits"])
	}
	if _, ok := snap["stale"]; ok {
		t.Error("SessionStarted kept a field from the previous session")
	}
	if _, ok := snap.Time("session_started"); !ok {
		t.Error("session_started missing")
	}
}

func TestHeartbeatAndProgress(t *testing.T) {
	p, _ := newTestPublisher(t)
	p.SessionStarted("enhancement")

	if !p.Progress(1.5, 5.5, Usage{CostUSD: 0.25, APICalls: 3, InputTokens: 100, OutputTokens: 50}) {
		t.Fatal("Progress() = false")
	}
	if !p.Heartbeat() {
		t.Fatal("Heartbeat() = false")
	}

	snap := p.Status()
	if snap.Float("elapsed_hours") != 1.5 || snap.Float("remaining_hours") != 5.5 {
		t.Errorf("hours = %v / %v", snap["elapsed_hours"], snap["remaining_hours"])
	}
	if snap.Float("cost_usd") != 0.25 || snap.Int("api_calls") != 3 {
		t.Errorf("usage = %v / %v", snap["cost_usd"], snap["api_calls"])
	}
	if snap.Int("input_tokens") != 100 || snap.Int("output_tokens") != 50 {
		t.Errorf("tokens = %v / %v", snap["input_tokens"], snap["output_tokens"])
	}
	if snap.String("mode") != "enhancement" {
		t.Errorf("mode lost after updates: %v", snap["mode"])
	}
}

func TestCommitsPushedAccumulates(t *testing.T) {
	p, _ := newTestPublisher(t)
	p.SessionStarted("full_build")

	p.CommitsPushed(2)
	p.CommitsPushed(3)

	snap := p.Status()
	if snap.Int("total_commits") != 5 {
		t.Errorf("total_commits = %v, want 5", snap["total_commits"])
	}
	if snap.Int("last_push_count") != 3 {
		t.Errorf("last_push_count = %v, want 3", snap["last_push_count"])
	}
}

func TestArtifactsUploadedAccumulates(t *testing.T) {
	p, _ := newTestPublisher(t)

	p.ArtifactsUploaded(4)
	p.ArtifactsUploaded(1)

	if got := p.Status().Int("total_screenshots"); got != 5 {
		t.Errorf("total_screenshots = %d, want 5", got)
	}
}

func TestErrorHistoryCapped(t *testing.T) {
	p, _ := newTestPublisher(t)
	p.SessionStarted("full_build")

	for i := 0; i < 55; i++ {
		if !p.Error(fmt.Sprintf("err_%d", i)) {
			t.Fatalf("Error(%d) = false", i)
		}
	}

	snap := p.Status()
	errs := snap.List("errors")
	if len(errs) != MaxErrors {
		t.Fatalf("len(errors) = %d, want %d", len(errs), MaxErrors)
	}
	if errs[0]["type"] != "err_5" {
		t.Errorf("oldest kept = %v, want err_5", errs[0]["type"])
	}
	if errs[len(errs)-1]["type"] != "err_54" {
		t.Errorf("newest = %v, want err_54", errs[len(errs)-1]["type"])
	}
	if snap.String("status") != StateError || snap.String("last_error") != "err_54" {
		t.Errorf("status/last_error = %v / %v", snap["status"], snap["last_error"])
	}
}

func TestErrorThenCompletedLastWriterWins(t *testing.T) {
	p, _ := newTestPublisher(t)
	p.SessionStarted("full_build")

	p.Error("push_failed")
	if !p.Completed(0, 12.5) {
		t.Fatal("Completed() = false")
	}

	snap := p.Status()
	if snap.String("status") != StateCompleted {
		t.Errorf("status = %v, want completed", snap["status"])
	}
	if snap.Int("exit_code") != 0 || snap.Float("duration_seconds") != 12.5 {
		t.Errorf("exit/duration = %v / %v", snap["exit_code"], snap["duration_seconds"])
	}
	if len(snap.List("errors")) != 1 {
		t.Error("error history lost on completion")
	}
}

func TestPushFailedAndClear(t *testing.T) {
	p, _ := newTestPublisher(t)
	p.SessionStarted("full_build")

	if !p.PushFailed() {
		t.Fatal("PushFailed() = false")
	}
	if _, ok := p.Status().Time("last_push_failed"); !ok {
		t.Error("last_push_failed missing")
	}

	if !p.Clear() {
		t.Fatal("Clear() = false")
	}
	snap := p.Status()
	if _, ok := snap["session_id"]; ok {
		t.Errorf("Clear kept session_id: %v", snap)
	}
}

func TestDisabledPublisher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.json")
	p := NewPublisher(status.NewStore(path, false), "vps-off", 1)

	ops := map[string]func() bool{
		"SessionStarted":    func() bool { return p.SessionStarted("full_build") },
		"Heartbeat":         p.Heartbeat,
		"Progress":          func() bool { return p.Progress(1, 1, Usage{}) },
		"CommitsPushed":     func() bool { return p.CommitsPushed(1) },
		"PushFailed":        p.PushFailed,
		"ArtifactsUploaded": func() bool { return p.ArtifactsUploaded(1) },
		"Error":             func() bool { return p.Error("x") },
		"Completed":         func() bool { return p.Completed(0, 1) },
		"Clear":             p.Clear,
	}
	for name, op := range ops {
		if op() {
			t.Errorf("%s() on disabled publisher = true", name)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("disabled publisher wrote %s", path)
	}
	if p.Enabled() {
		t.Error("Enabled() = true")
	}
}

func TestPublisherUsesStoreClock(t *testing.T) {
	fixed := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	store := status.NewStore(filepath.Join(t.TempDir(), "h.json"), true, status.WithClock(func() time.Time { return fixed }))
	p := NewPublisher(store, "s", 1)

	p.Heartbeat()
	if got := p.Status().String("last_heartbeat"); got != "2026-05-06T07:08:09Z" {
		t.Errorf("last_heartbeat = %q", got)
	}
}
