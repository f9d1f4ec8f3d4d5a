package health

import (
	"fmt"
	"time"

	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
)

// DefaultStaleAfter is how old a heartbeat may get before the agent is
// considered dead.
const DefaultStaleAfter = 300 * time.Second

// Report contains all health check results for one snapshot.
type Report struct {
	Checks      []Check   `json:"checks"`
	GeneratedAt time.Time `json:"generated_at"`
	SessionID   string    `json:"session_id,omitempty"`
	Issue       int       `json:"current_issue,omitempty"`
}

// Healthy reports whether no check is in the error state.
func (r *Report) Healthy() bool {
	return r.Overall() != StatusError
}

// Overall returns the worst status across all checks.
func (r *Report) Overall() Status {
	worst := StatusOK
	for _, c := range r.Checks {
		if c.Status == StatusError {
			return StatusError
		}
		if c.Status == StatusWarning {
			worst = StatusWarning
		}
	}
	return worst
}

// Evaluate turns a status snapshot into a report. staleAfter <= 0 uses
// DefaultStaleAfter.
func Evaluate(snap status.Snapshot, now time.Time, staleAfter time.Duration) *Report {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	report := &Report{
		GeneratedAt: now.UTC(),
		SessionID:   snap.String("session_id"),
		Issue:       snap.Int("current_issue"),
	}
	report.Checks = append(report.Checks,
		checkSession(snap),
		checkHeartbeat(snap, now, staleAfter),
		checkErrors(snap),
		checkPush(snap),
	)
	return report
}

func checkSession(snap status.Snapshot) Check {
	c := Check{Name: "session"}
	switch snap.String("status") {
	case StateRunning:
		c.Status = StatusOK
		c.Message = "running"
		if issue := snap.Int("current_issue"); issue > 0 {
			c.Message = fmt.Sprintf("running (issue #%d)", issue)
		}
	case StateCompleted:
		code := snap.Int("exit_code")
		if code == 0 {
			c.Status = StatusOK
			c.Message = "completed"
		} else {
			c.Status = StatusWarning
			c.Message = fmt.Sprintf("completed with exit code %d", code)
		}
	case StateError:
		c.Status = StatusError
		c.Message = "error: " + snap.String("last_error")
		c.Fix = "inspect the agent logs on the VPS"
	default:
		c.Status = StatusError
		c.Message = "no session recorded"
		c.Fix = "start the agent with `vps-agent run`"
	}
	return c
}

func checkHeartbeat(snap status.Snapshot, now time.Time, staleAfter time.Duration) Check {
	c := Check{Name: "heartbeat"}
	if snap.String("status") == StateCompleted {
		c.Status = StatusDisabled
		c.Message = "session completed"
		return c
	}

	last, ok := snap.Time("last_heartbeat")
	if !ok {
		c.Status = StatusError
		c.Message = "no heartbeat recorded"
		return c
	}

	age := now.Sub(last).Truncate(time.Second)
	if age > staleAfter {
		c.Status = StatusError
		c.Message = fmt.Sprintf("stale (%s ago, threshold %s)", age, staleAfter)
		c.Fix = "agent may have crashed or hung"
		return c
	}
	if age < 0 {
		age = 0
	}
	c.Status = StatusOK
	c.Message = fmt.Sprintf("%s ago", age)
	return c
}

func checkErrors(snap status.Snapshot) Check {
	errs := snap.List("errors")
	if len(errs) == 0 {
		return Check{Name: "errors", Status: StatusOK, Message: "none"}
	}
	return Check{
		Name:    "errors",
		Status:  StatusWarning,
		Message: fmt.Sprintf("%d recorded, last: %s", len(errs), snap.String("last_error")),
	}
}

func checkPush(snap status.Snapshot) Check {
	c := Check{Name: "push", Status: StatusOK}
	c.Message = fmt.Sprintf("%d commits", snap.Int("total_commits"))

	failed, hasFailed := snap.Time("last_push_failed")
	if !hasFailed {
		return c
	}
	pushed, hasPushed := snap.Time("last_push")
	if !hasPushed || failed.After(pushed) {
		c.Status = StatusWarning
		c.Message = "last push failed at " + status.Timestamp(failed)
	}
	return c
}
