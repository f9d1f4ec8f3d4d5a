package supervisor

import (
	"context"
	"errors"
	"sync"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
	"github.com/aizenshtat/autonomous-coding-agent/internal/gitops"
)

type fakeHandle struct {
	mu        sync.Mutex
	polls     int
	exitAfter int // 0 runs until stopped
	code      int
	stopped   bool
	onPoll    func(n int)
}

func (h *fakeHandle) Poll() (State, int) {
	h.mu.Lock()
	h.polls++
	n := h.polls
	hook := h.onPoll
	h.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || (h.exitAfter > 0 && n >= h.exitAfter) {
		return StateExited, h.code
	}
	return StateRunning, 0
}

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	return nil
}

func (h *fakeHandle) PID() int { return 4242 }

func (h *fakeHandle) wasStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

type fakeLauncher struct {
	handle *fakeHandle
	err    error
	spec   LaunchSpec
}

func (l *fakeLauncher) Launch(_ context.Context, spec LaunchSpec) (Handle, error) {
	l.spec = spec
	if l.err != nil {
		return nil, l.err
	}
	return l.handle, nil
}

// memTracker is a minimal in-memory issue tracker.
type memTracker struct {
	mu       sync.Mutex
	next     int
	issues   map[int]*github.Issue
	comments map[int][]string
}

func newMemTracker() *memTracker {
	return &memTracker{next: 100, issues: make(map[int]*github.Issue), comments: make(map[int][]string)}
}

func (m *memTracker) EnsureLabel(context.Context, string, string, string) error { return nil }

func (m *memTracker) CreateIssue(_ context.Context, title, body string, labels []string) (*github.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue := &github.Issue{Number: m.next, Title: title, Body: body, State: github.StateOpen}
	for _, l := range labels {
		issue.Labels = append(issue.Labels, github.Label{Name: l})
	}
	m.issues[issue.Number] = issue
	m.next++
	cp := *issue
	return &cp, nil
}

func (m *memTracker) ListIssuesByLabel(_ context.Context, label string) ([]*github.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*github.Issue
	for _, issue := range m.issues {
		if github.HasLabel(issue, label) {
			cp := *issue
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTracker) GetIssue(_ context.Context, number int) (*github.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[number]
	if !ok {
		return nil, &github.APIError{StatusCode: 404, Body: "Not Found"}
	}
	cp := *issue
	return &cp, nil
}

func (m *memTracker) AddComment(_ context.Context, number int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[number] = append(m.comments[number], body)
	return nil
}

func (m *memTracker) UpdateIssue(_ context.Context, number int, state string, labels []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[number]
	if !ok {
		return &github.APIError{StatusCode: 404, Body: "Not Found"}
	}
	issue.State = state
	issue.Labels = nil
	for _, l := range labels {
		issue.Labels = append(issue.Labels, github.Label{Name: l})
	}
	return nil
}

func (m *memTracker) ListComments(_ context.Context, number int) ([]*github.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*github.Comment
	for i, b := range m.comments[number] {
		out = append(out, &github.Comment{ID: int64(i + 1), Body: b})
	}
	return out, nil
}

func (m *memTracker) commentsOn(number int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.comments[number]...)
}

func (m *memTracker) issueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.issues)
}

type fakeCommits struct {
	commits []gitops.Commit
	err     error
}

func (f *fakeCommits) RecentCommits(context.Context, int) ([]gitops.Commit, error) {
	return f.commits, f.err
}

var errLaunch = errors.New("exec: \"python\": executable file not found in $PATH")
