package reconcile

import (
	"context"
	"log/slog"
	"sort"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
	"github.com/aizenshtat/autonomous-coding-agent/internal/ledger"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
)

// Registry maps feature ids to tracking issues. The map only grows; remote
// feature labels are the source of truth after a restart.
type Registry struct {
	tracker Tracker
	issues  map[string]int
	log     *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(tracker Tracker) *Registry {
	return &Registry{
		tracker: tracker,
		issues:  make(map[string]int),
		log:     logging.WithComponent("registry"),
	}
}

// ExtractFeatures returns the unique feature ids of records in first-seen order.
func ExtractFeatures(records []ledger.Record) []string {
	return ledger.Features(records)
}

// Adopt seeds the map from records that already carry an issue number.
func (r *Registry) Adopt(records []ledger.Record) {
	for _, rec := range records {
		if rec.Feature == "" || rec.Issue() == 0 {
			continue
		}
		if _, ok := r.issues[rec.Feature]; !ok {
			r.issues[rec.Feature] = rec.Issue()
		}
	}
}

// Lookup returns the issue bound to feature.
func (r *Registry) Lookup(feature string) (int, bool) {
	n, ok := r.issues[feature]
	return n, ok
}

// Map returns a copy of the feature to issue map.
func (r *Registry) Map() map[string]int {
	out := make(map[string]int, len(r.issues))
	for k, v := range r.issues {
		out[k] = v
	}
	return out
}

// EnsureIssues binds every feature to an issue, reusing an existing issue
// that carries the feature label before creating a new one. A failure for one
// feature does not stop the others.
func (r *Registry) EnsureIssues(ctx context.Context, features []string) (map[string]int, []Outcome) {
	var outcomes []Outcome
	for _, feature := range features {
		if _, ok := r.issues[feature]; ok {
			continue
		}
		o := r.ensure(ctx, feature)
		o.Feature = feature
		outcomes = append(outcomes, o)
	}
	return r.Map(), outcomes
}

func (r *Registry) ensure(ctx context.Context, feature string) Outcome {
	label := github.FeatureLabel(feature)
	log := r.log.With(slog.String("feature", feature))

	existing, err := r.tracker.ListIssuesByLabel(ctx, label)
	if err != nil {
		log.Warn("Failed to look up feature issue", slog.Any("error", err))
		return failed(ActionEnsureIssue, 0, err)
	}
	if len(existing) > 0 {
		sort.Slice(existing, func(i, j int) bool { return existing[i].Number < existing[j].Number })
		number := existing[0].Number
		r.issues[feature] = number
		log.Info("Recovered feature issue", slog.Int("issue", number))
		return success(ActionEnsureIssue, number, "recovered existing issue")
	}

	if err := r.tracker.EnsureLabel(ctx, label, github.FeatureLabelColor, github.FeatureLabelDescription(feature)); err != nil {
		log.Warn("Failed to create feature label", slog.Any("error", err))
		return failed(ActionEnsureIssue, 0, err)
	}

	issue, err := r.tracker.CreateIssue(ctx,
		github.FeatureIssueTitle(feature),
		github.FeatureIssueBody(feature),
		[]string{label, github.LabelPhaseBuild, github.LabelAgentBuilding},
	)
	if err != nil {
		log.Warn("Failed to create feature issue", slog.Any("error", err))
		return failed(ActionEnsureIssue, 0, err)
	}

	r.issues[feature] = issue.Number
	log.Info("Created feature issue", slog.Int("issue", issue.Number))
	return success(ActionEnsureIssue, issue.Number, "created issue")
}

// StampIssueNumbers re-reads the ledger at path, sets issueNumber on every
// record whose feature is mapped and writes the file only if a record changed.
func StampIssueNumbers(path string, issues map[string]int) ([]ledger.Record, bool, error) {
	records, err := ledger.Read(path)
	if err != nil {
		return nil, false, err
	}

	changed := applyIssues(records, issues)
	if !changed {
		return records, false, nil
	}
	if err := ledger.Write(path, records); err != nil {
		return records, false, err
	}
	return records, true, nil
}

func applyIssues(records []ledger.Record, issues map[string]int) bool {
	changed := false
	for i := range records {
		n, ok := issues[records[i].Feature]
		if !ok {
			continue
		}
		if records[i].SetIssue(n) {
			changed = true
		}
	}
	return changed
}
