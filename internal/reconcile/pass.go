package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aizenshtat/autonomous-coding-agent/internal/ledger"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
)

// Config locates the files a pass works on.
type Config struct {
	LedgerPath   string
	ArtifactsDir string
	// SessionIssue receives artifact announcements; 0 disables them.
	SessionIssue int
}

// Report summarizes one pass.
type Report struct {
	Ran      bool
	Reason   string
	Records  int
	Features int
	Stamped  bool
	Outcomes []Outcome
	Duration time.Duration
}

// Failures counts failed outcomes.
func (r Report) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// Syncer owns the mutable reconciliation state of one supervisor run and
// runs ledger read, issue ensure, progress compare and artifact dedup in
// sequence. It is not safe for concurrent passes.
type Syncer struct {
	cfg        Config
	registry   *Registry
	reconciler *Reconciler
	dedup      *Deduplicator
	seen       HashSet

	recorder    Recorder
	onArtifacts func(n int)
	now         func() time.Time
	log         *slog.Logger
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithRecorder sends every outcome to rec.
func WithRecorder(rec Recorder) SyncerOption {
	return func(s *Syncer) {
		s.recorder = rec
	}
}

// WithArtifactHook is called with the number of newly announced artifacts.
func WithArtifactHook(fn func(n int)) SyncerOption {
	return func(s *Syncer) {
		s.onArtifacts = fn
	}
}

// NewSyncer creates a syncer with empty state.
func NewSyncer(tracker Tracker, cfg Config, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		cfg:        cfg,
		registry:   NewRegistry(tracker),
		reconciler: NewReconciler(tracker),
		dedup:      NewDeduplicator(tracker),
		seen:       NewHashSet(),
		now:        time.Now,
		log:        logging.WithComponent("sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the feature map.
func (s *Syncer) Registry() *Registry { return s.registry }

// Reconciler exposes the progress counters.
func (s *Syncer) Reconciler() *Reconciler { return s.reconciler }

// Seen returns a copy of the announced artifact hashes.
func (s *Syncer) Seen() HashSet { return s.seen.Clone() }

// Resume seeds the announced artifact set from the session issue's comments.
func (s *Syncer) Resume(ctx context.Context) error {
	if s.cfg.SessionIssue <= 0 {
		return nil
	}
	seeded, err := s.dedup.SeedFromHistory(ctx, s.cfg.SessionIssue)
	if err != nil {
		return fmt.Errorf("failed to seed artifact history: %w", err)
	}
	s.seen.Merge(seeded)
	artifactsSeen.Set(float64(len(s.seen)))
	return nil
}

// Pass runs one reconciliation pass. It is skipped while the ledger does not
// exist or cannot be parsed.
func (s *Syncer) Pass(ctx context.Context) Report {
	start := s.now()
	report := s.pass(ctx)
	report.Duration = s.now().Sub(start)

	if report.Ran {
		passesTotal.WithLabelValues("ran").Inc()
		passDuration.Observe(report.Duration.Seconds())
	} else {
		passesTotal.WithLabelValues("skipped").Inc()
	}
	for _, o := range report.Outcomes {
		observeOutcome(o)
		if s.recorder != nil {
			if err := s.recorder.Record(ctx, o); err != nil {
				s.log.Warn("Failed to record outcome", slog.Any("error", err))
			}
		}
	}
	return report
}

func (s *Syncer) pass(ctx context.Context) Report {
	if !ledger.Exists(s.cfg.LedgerPath) {
		return Report{Reason: "ledger not found"}
	}

	records, err := ledger.Read(s.cfg.LedgerPath)
	if err != nil {
		s.log.Warn("Skipping pass, ledger unreadable", slog.String("path", s.cfg.LedgerPath), slog.Any("error", err))
		return Report{Reason: err.Error()}
	}

	report := Report{Ran: true, Records: len(records)}

	s.registry.Adopt(records)
	features := ExtractFeatures(records)
	report.Features = len(features)

	issues, outcomes := s.registry.EnsureIssues(ctx, features)
	report.Outcomes = append(report.Outcomes, outcomes...)

	if needsStamp(records, issues) {
		stamped, changed, err := StampIssueNumbers(s.cfg.LedgerPath, issues)
		switch {
		case err != nil:
			s.log.Warn("Failed to stamp ledger", slog.Any("error", err))
			report.Outcomes = append(report.Outcomes, failed(ActionStamp, 0, err))
			applyIssues(records, issues)
		default:
			records = stamped
			report.Stamped = changed
			if changed {
				report.Outcomes = append(report.Outcomes, success(ActionStamp, 0, fmt.Sprintf("%d features", len(issues))))
			}
		}
	}

	report.Outcomes = append(report.Outcomes, s.reconciler.Reconcile(ctx, records)...)

	if o, ok := s.publishArtifacts(ctx); ok {
		report.Outcomes = append(report.Outcomes, o)
	}
	return report
}

func (s *Syncer) publishArtifacts(ctx context.Context) (Outcome, bool) {
	if s.cfg.ArtifactsDir == "" || s.cfg.SessionIssue <= 0 {
		return Outcome{}, false
	}

	scan, err := Scan(s.cfg.ArtifactsDir)
	if err != nil {
		s.log.Warn("Failed to scan artifacts", slog.Any("error", err))
		return failed(ActionArtifacts, s.cfg.SessionIssue, err), true
	}

	before := len(s.seen)
	next, o := s.dedup.PublishNew(ctx, scan, s.seen, s.cfg.SessionIssue)
	s.seen = next
	artifactsSeen.Set(float64(len(s.seen)))

	if o.Result == ResultSkipped {
		return o, false
	}
	if added := len(s.seen) - before; added > 0 && s.onArtifacts != nil {
		s.onArtifacts(added)
	}
	return o, true
}

func needsStamp(records []ledger.Record, issues map[string]int) bool {
	for _, r := range records {
		if n, ok := issues[r.Feature]; ok && r.Issue() != n {
			return true
		}
	}
	return false
}
