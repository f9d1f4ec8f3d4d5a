package github

import (
	"context"
	"fmt"
)

// IssueTracker binds a Client to one repository.
type IssueTracker struct {
	client *Client
	owner  string
	repo   string
}

// NewIssueTracker creates a tracker for repo given as "owner/name" or a URL.
func NewIssueTracker(client *Client, repo string) (*IssueTracker, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return nil, err
	}
	return &IssueTracker{client: client, owner: owner, repo: name}, nil
}

// FullName returns "owner/name".
func (t *IssueTracker) FullName() string {
	return t.owner + "/" + t.repo
}

// EnsureLabel creates a label, treating an existing one as success.
func (t *IssueTracker) EnsureLabel(ctx context.Context, name, color, description string) error {
	if err := t.client.CreateLabel(ctx, t.owner, t.repo, Label{Name: name, Color: color, Description: description}); err != nil {
		return fmt.Errorf("failed to create label %s: %w", name, err)
	}
	return nil
}

// CreateIssue opens an issue.
func (t *IssueTracker) CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error) {
	issue, err := t.client.CreateIssue(ctx, t.owner, t.repo, &IssueInput{Title: title, Body: body, Labels: labels})
	if err != nil {
		return nil, fmt.Errorf("failed to create issue %q: %w", title, err)
	}
	return issue, nil
}

// ListIssuesByLabel lists issues in any state carrying label.
func (t *IssueTracker) ListIssuesByLabel(ctx context.Context, label string) ([]*Issue, error) {
	issues, err := t.client.ListIssuesByLabel(ctx, t.owner, t.repo, label)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues for %s: %w", label, err)
	}
	return issues, nil
}

// GetIssue fetches an issue.
func (t *IssueTracker) GetIssue(ctx context.Context, number int) (*Issue, error) {
	issue, err := t.client.GetIssue(ctx, t.owner, t.repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}
	return issue, nil
}

// AddComment posts a comment.
func (t *IssueTracker) AddComment(ctx context.Context, number int, body string) error {
	if _, err := t.client.AddComment(ctx, t.owner, t.repo, number, body); err != nil {
		return fmt.Errorf("failed to comment on #%d: %w", number, err)
	}
	return nil
}

// UpdateIssue sets the state and full label set of an issue.
func (t *IssueTracker) UpdateIssue(ctx context.Context, number int, state string, labels []string) error {
	if _, err := t.client.UpdateIssue(ctx, t.owner, t.repo, number, &IssueUpdate{State: state, Labels: labels}); err != nil {
		return fmt.Errorf("failed to update issue #%d: %w", number, err)
	}
	return nil
}

// ListComments returns all comments on an issue.
func (t *IssueTracker) ListComments(ctx context.Context, number int) ([]*Comment, error) {
	comments, err := t.client.ListComments(ctx, t.owner, t.repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments on #%d: %w", number, err)
	}
	return comments, nil
}
