package health

import (
	"strings"
	"testing"
	"time"

	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
)

func TestStatusSymbol(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "✓"},
		{StatusWarning, "○"},
		{StatusError, "✗"},
		{StatusDisabled, "·"},
		{Status(99), "?"},
	}
	for _, tt := range tests {
		if got := tt.status.Symbol(); got != tt.want {
			t.Errorf("Status(%d).Symbol() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{StatusWarning, "warning"},
		{StatusError, "error"},
		{StatusDisabled, "disabled"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatusColorSymbol(t *testing.T) {
	for _, s := range []Status{StatusOK, StatusWarning, StatusError, StatusDisabled} {
		if cs := s.ColorSymbol(); !strings.Contains(cs, s.Symbol()) {
			t.Errorf("Status(%d).ColorSymbol() = %q, missing %q", s, cs, s.Symbol())
		}
	}
}

func findCheck(t *testing.T, r *Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found", name)
	return Check{}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ts := func(d time.Duration) string { return status.Timestamp(now.Add(-d)) }

	tests := []struct {
		name        string
		snap        status.Snapshot
		wantHealthy bool
		wantOverall Status
		heartbeat   Status
	}{
		{
			name:        "fresh running session",
			snap:        status.Snapshot{"status": "running", "current_issue": 42, "last_heartbeat": ts(30 * time.Second)},
			wantHealthy: true,
			wantOverall: StatusOK,
			heartbeat:   StatusOK,
		},
		{
			name:        "stale heartbeat",
			snap:        status.Snapshot{"status": "running", "last_heartbeat": ts(10 * time.Minute)},
			wantHealthy: false,
			wantOverall: StatusError,
			heartbeat:   StatusError,
		},
		{
			name:        "empty snapshot",
			snap:        status.Snapshot{},
			wantHealthy: false,
			wantOverall: StatusError,
			heartbeat:   StatusError,
		},
		{
			name:        "completed session ignores heartbeat age",
			snap:        status.Snapshot{"status": "completed", "exit_code": 0, "last_heartbeat": ts(5 * time.Hour)},
			wantHealthy: true,
			wantOverall: StatusOK,
			heartbeat:   StatusDisabled,
		},
		{
			name:        "completed with failure exit",
			snap:        status.Snapshot{"status": "completed", "exit_code": 2},
			wantHealthy: true,
			wantOverall: StatusWarning,
			heartbeat:   StatusDisabled,
		},
		{
			name: "error state",
			snap: status.Snapshot{
				"status":         "error",
				"last_error":     "agent_launch_failed",
				"last_heartbeat": ts(time.Second),
				"errors":         []any{map[string]any{"type": "agent_launch_failed"}},
			},
			wantHealthy: false,
			wantOverall: StatusError,
			heartbeat:   StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Evaluate(tt.snap, now, 0)
			if r.Healthy() != tt.wantHealthy {
				t.Errorf("Healthy() = %v, want %v (%+v)", r.Healthy(), tt.wantHealthy, r.Checks)
			}
			if r.Overall() != tt.wantOverall {
				t.Errorf("Overall() = %v, want %v", r.Overall(), tt.wantOverall)
			}
			if hb := findCheck(t, r, "heartbeat"); hb.Status != tt.heartbeat {
				t.Errorf("heartbeat = %v (%s), want %v", hb.Status, hb.Message, tt.heartbeat)
			}
		})
	}
}

func TestEvaluateCustomThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := status.Snapshot{"status": "running", "last_heartbeat": status.Timestamp(now.Add(-90 * time.Second))}

	if !Evaluate(snap, now, 0).Healthy() {
		t.Error("90s heartbeat should be healthy under the default threshold")
	}
	if Evaluate(snap, now, time.Minute).Healthy() {
		t.Error("90s heartbeat should be stale under a 1m threshold")
	}
}

func TestEvaluatePushCheck(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := status.Snapshot{
		"status":           "running",
		"last_heartbeat":   status.Timestamp(now),
		"last_push":        status.Timestamp(now.Add(-time.Hour)),
		"last_push_failed": status.Timestamp(now.Add(-time.Minute)),
	}

	push := findCheck(t, Evaluate(snap, now, 0), "push")
	if push.Status != StatusWarning {
		t.Errorf("push = %v, want warning", push.Status)
	}

	snap["last_push"] = status.Timestamp(now)
	push = findCheck(t, Evaluate(snap, now, 0), "push")
	if push.Status != StatusOK {
		t.Errorf("push after recovery = %v, want ok", push.Status)
	}
}
