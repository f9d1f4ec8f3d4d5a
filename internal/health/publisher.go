package health

import (
	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
)

// Session states written to the status field.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateError     = "error"
)

// MaxErrors bounds the error history kept in the snapshot.
const MaxErrors = 50

// Usage carries the token and cost counters reported with progress.
type Usage struct {
	CostUSD      float64
	APICalls     int
	InputTokens  int
	OutputTokens int
}

// Publisher records lifecycle events for one session. Every method returns
// false without side effects when the underlying store is disabled.
type Publisher struct {
	store     *status.Store
	sessionID string
	issue     int
}

// NewPublisher creates a publisher for the given session and tracker issue.
func NewPublisher(store *status.Store, sessionID string, issue int) *Publisher {
	return &Publisher{store: store, sessionID: sessionID, issue: issue}
}

// Enabled reports whether events reach the status file.
func (p *Publisher) Enabled() bool {
	return p.store.Enabled()
}

func (p *Publisher) now() string {
	return status.Timestamp(p.store.Now())
}

// SessionStarted resets the snapshot and records the start of a session.
func (p *Publisher) SessionStarted(mode string) bool {
	now := p.now()
	return p.store.Replace(status.Snapshot{
		"current_issue":   p.issue,
		"session_id":      p.sessionID,
		"status":          StateRunning,
		"mode":            mode,
		"session_started": now,
		"last_heartbeat":  now,
		"total_commits":   0,
		"elapsed_hours":   0,
		"cost_usd":        0,
		"api_calls":       0,
		"input_tokens":    0,
		"output_tokens":   0,
	})
}

// Heartbeat refreshes the liveness timestamp.
func (p *Publisher) Heartbeat() bool {
	return p.store.Update(status.Snapshot{
		"last_heartbeat": p.now(),
		"status":         StateRunning,
	})
}

// Progress records the periodic counters.
func (p *Publisher) Progress(elapsedHours, remainingHours float64, usage Usage) bool {
	return p.store.Update(status.Snapshot{
		"elapsed_hours":   elapsedHours,
		"remaining_hours": remainingHours,
		"cost_usd":        usage.CostUSD,
		"api_calls":       usage.APICalls,
		"input_tokens":    usage.InputTokens,
		"output_tokens":   usage.OutputTokens,
		"last_heartbeat":  p.now(),
	})
}

// CommitsPushed adds count to the running commit total.
func (p *Publisher) CommitsPushed(count int) bool {
	return p.store.Mutate(func(snap status.Snapshot) {
		snap["total_commits"] = snap.Int("total_commits") + count
		snap["last_push"] = p.now()
		snap["last_push_count"] = count
	})
}

// PushFailed records a failed push.
func (p *Publisher) PushFailed() bool {
	return p.store.Update(status.Snapshot{"last_push_failed": p.now()})
}

// ArtifactsUploaded adds count to the uploaded screenshot total.
func (p *Publisher) ArtifactsUploaded(count int) bool {
	return p.store.Mutate(func(snap status.Snapshot) {
		snap["total_screenshots"] = snap.Int("total_screenshots") + count
		snap["last_screenshot_upload"] = p.now()
	})
}

// Error appends kind to the capped error history and flips the status.
func (p *Publisher) Error(kind string) bool {
	return p.store.Mutate(func(snap status.Snapshot) {
		now := p.now()
		errs := snap.List("errors")
		errs = append(errs, map[string]any{"type": kind, "timestamp": now})
		if len(errs) > MaxErrors {
			errs = errs[len(errs)-MaxErrors:]
		}
		snap["errors"] = errs
		snap["last_error"] = kind
		snap["last_error_time"] = now
		snap["status"] = StateError
	})
}

// Completed records the terminal exit code and duration.
func (p *Publisher) Completed(exitCode int, durationSeconds float64) bool {
	return p.store.Update(status.Snapshot{
		"status":            StateCompleted,
		"exit_code":         exitCode,
		"duration_seconds":  durationSeconds,
		"session_completed": p.now(),
	})
}

// Clear empties the snapshot.
func (p *Publisher) Clear() bool {
	return p.store.Replace(status.Snapshot{})
}

// Status returns the current snapshot.
func (p *Publisher) Status() status.Snapshot {
	return p.store.Read()
}
