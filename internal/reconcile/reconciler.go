package reconcile

import (
	"context"
	"log/slog"
	"sort"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
	"github.com/aizenshtat/autonomous-coding-agent/internal/ledger"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
)

// Reconciler posts per-issue progress whenever the passed count changes.
// lastSeen is the only duplicate suppression, so it is updated only after the
// remote call succeeds.
type Reconciler struct {
	tracker  Tracker
	lastSeen map[int]int
	// commented holds issues whose completion comment was posted but whose
	// close failed, so a retry does not post the comment twice.
	commented map[int]bool
	log       *slog.Logger
}

// NewReconciler creates a reconciler with no observed counts.
func NewReconciler(tracker Tracker) *Reconciler {
	return &Reconciler{
		tracker:   tracker,
		lastSeen:  make(map[int]int),
		commented: make(map[int]bool),
		log:       logging.WithComponent("reconciler"),
	}
}

// LastSeen returns the last posted passed count for issue.
func (r *Reconciler) LastSeen(issue int) (int, bool) {
	n, ok := r.lastSeen[issue]
	return n, ok
}

// Reconcile compares the ledger against the last posted counts and drives
// the remote transitions. Issues are handled in ascending order and each
// issue's failure is isolated.
func (r *Reconciler) Reconcile(ctx context.Context, records []ledger.Record) []Outcome {
	tallies := ledger.TallyByIssue(records)
	numbers := make([]int, 0, len(tallies))
	for n := range tallies {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var outcomes []Outcome
	for _, n := range numbers {
		t := tallies[n]
		if seen, ok := r.lastSeen[n]; ok && seen == t.Passed {
			continue
		}

		var o Outcome
		if t.Complete() {
			o = r.complete(ctx, t)
		} else {
			o = r.progress(ctx, t)
		}
		if !o.Failed() {
			r.lastSeen[n] = t.Passed
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (r *Reconciler) progress(ctx context.Context, t ledger.Tally) Outcome {
	log := r.log.With(slog.Int("issue", t.Issue))

	if err := r.tracker.AddComment(ctx, t.Issue, github.FormatProgressComment(t.Passed, t.Total)); err != nil {
		log.Warn("Failed to post progress", slog.Any("error", err))
		return failed(ActionProgress, t.Issue, err)
	}

	log.Info("Posted progress", slog.Int("passed", t.Passed), slog.Int("total", t.Total))
	return success(ActionProgress, t.Issue, github.ProgressRatio(t.Passed, t.Total))
}

func (r *Reconciler) complete(ctx context.Context, t ledger.Tally) Outcome {
	log := r.log.With(slog.Int("issue", t.Issue))

	issue, err := r.tracker.GetIssue(ctx, t.Issue)
	if err != nil {
		log.Warn("Failed to fetch issue before closing", slog.Any("error", err))
		return failed(ActionComplete, t.Issue, err)
	}
	if issue.State == github.StateClosed && github.HasLabel(issue, github.LabelAgentComplete) {
		delete(r.commented, t.Issue)
		log.Info("Issue already complete")
		return skipped(ActionComplete, t.Issue, "already closed as "+github.LabelAgentComplete)
	}

	if !r.commented[t.Issue] {
		if err := r.tracker.AddComment(ctx, t.Issue, github.FormatCompletionComment(t.Total)); err != nil {
			log.Warn("Failed to post completion comment", slog.Any("error", err))
			return failed(ActionComplete, t.Issue, err)
		}
		r.commented[t.Issue] = true
	}

	if err := r.tracker.UpdateIssue(ctx, t.Issue, github.StateClosed, completedLabels(issue)); err != nil {
		log.Warn("Failed to close issue", slog.Any("error", err))
		return failed(ActionComplete, t.Issue, err)
	}
	delete(r.commented, t.Issue)

	log.Info("Closed completed issue", slog.Int("total", t.Total))
	return success(ActionComplete, t.Issue, github.ProgressRatio(t.Passed, t.Total))
}

// completedLabels swaps agent-building for agent-complete and keeps every
// other label in its original order.
func completedLabels(issue *github.Issue) []string {
	labels := make([]string, 0, len(issue.Labels)+1)
	hasComplete := false
	for _, name := range issue.LabelNames() {
		switch name {
		case github.LabelAgentBuilding:
			continue
		case github.LabelAgentComplete:
			hasComplete = true
		}
		labels = append(labels, name)
	}
	if !hasComplete {
		labels = append(labels, github.LabelAgentComplete)
	}
	return labels
}
