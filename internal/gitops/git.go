// Package gitops reads the agent's commit history and the commit queue that
// the post-commit hook appends to.
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Commit is one line of `git log --oneline`.
type Commit struct {
	SHA     string
	Subject string
}

// Oneline formats c back to its `--oneline` form.
func (c Commit) Oneline() string {
	if c.Subject == "" {
		return c.SHA
	}
	return c.SHA + " " + c.Subject
}

// Repo runs read-only git commands in a working tree.
type Repo struct {
	path string
}

// NewRepo creates a Repo rooted at path.
func NewRepo(path string) *Repo {
	return &Repo{path: path}
}

// Path returns the working tree path.
func (r *Repo) Path() string { return r.path }

// RecentCommits returns up to n commits, newest first.
func (r *Repo) RecentCommits(ctx context.Context, n int) ([]Commit, error) {
	cmd := exec.CommandContext(ctx, "git", "log", "--oneline", fmt.Sprintf("-%d", n))
	cmd.Dir = r.path
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to read git log: %w", err)
	}
	return ParseOneline(string(output)), nil
}

// CurrentBranch returns the checked out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = r.path
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ParseOneline splits `git log --oneline` output into commits.
func ParseOneline(output string) []Commit {
	var commits []Commit
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sha, subject, _ := strings.Cut(line, " ")
		commits = append(commits, Commit{SHA: sha, Subject: subject})
	}
	return commits
}

// Onelines returns each commit in `--oneline` form.
func Onelines(commits []Commit) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.Oneline()
	}
	return out
}
