// Package reconcile mirrors the test ledger onto GitHub issues: it binds
// features to issues, posts progress as tests pass, closes finished issues
// and announces new screenshots exactly once.
package reconcile

import (
	"context"
	"errors"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
)

// Tracker is the subset of the issue tracker a reconciliation pass uses.
// *github.IssueTracker implements it.
type Tracker interface {
	EnsureLabel(ctx context.Context, name, color, description string) error
	CreateIssue(ctx context.Context, title, body string, labels []string) (*github.Issue, error)
	ListIssuesByLabel(ctx context.Context, label string) ([]*github.Issue, error)
	GetIssue(ctx context.Context, number int) (*github.Issue, error)
	AddComment(ctx context.Context, number int, body string) error
	UpdateIssue(ctx context.Context, number int, state string, labels []string) error
	ListComments(ctx context.Context, number int) ([]*github.Comment, error)
}

var _ Tracker = (*github.IssueTracker)(nil)

// Action names a remote side effect.
type Action string

const (
	ActionEnsureIssue Action = "ensure_issue"
	ActionStamp       Action = "stamp_ledger"
	ActionProgress    Action = "progress_comment"
	ActionComplete    Action = "complete_issue"
	ActionArtifacts   Action = "artifacts"
	ActionSummary     Action = "commit_summary"
)

// Result classifies an Outcome.
type Result string

const (
	ResultSuccess Result = "success"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

// Outcome is the explicit result of one reconciliation action.
type Outcome struct {
	Issue   int
	Feature string
	Action  Action
	Result  Result
	Reason  string
	Err     error
}

// Failed reports whether the action failed.
func (o Outcome) Failed() bool { return o.Result == ResultFailed }

func success(action Action, issue int, reason string) Outcome {
	return Outcome{Issue: issue, Action: action, Result: ResultSuccess, Reason: reason}
}

func skipped(action Action, issue int, reason string) Outcome {
	return Outcome{Issue: issue, Action: action, Result: ResultSkipped, Reason: reason}
}

func failed(action Action, issue int, err error) Outcome {
	return Outcome{Issue: issue, Action: action, Result: ResultFailed, Reason: err.Error(), Err: err}
}

// Recorder receives every outcome of a pass, e.g. the activity journal.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// FirstError returns the first failure among outcomes, or nil.
func FirstError(outcomes []Outcome) error {
	for _, o := range outcomes {
		if o.Failed() {
			if o.Err != nil {
				return o.Err
			}
			return errors.New(o.Reason)
		}
	}
	return nil
}
