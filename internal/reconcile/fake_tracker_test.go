package reconcile

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
)

var errRemote = errors.New("API error (status 502): bad gateway")

// fakeTracker is an in-memory issue tracker.
type fakeTracker struct {
	mu       sync.Mutex
	next     int
	issues   map[int]*github.Issue
	labels   map[string]bool
	comments map[int][]string

	// failures keyed by method name; a value > 0 fails that many calls.
	failures map[string]int
	calls    map[string]int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		next:     1,
		issues:   make(map[int]*github.Issue),
		labels:   make(map[string]bool),
		comments: make(map[int][]string),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (f *fakeTracker) fail(method string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = times
}

func (f *fakeTracker) enter(method string) error {
	f.calls[method]++
	if f.failures[method] > 0 {
		f.failures[method]--
		return errRemote
	}
	return nil
}

func (f *fakeTracker) addIssue(number int, state string, labels ...string) *github.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue := &github.Issue{Number: number, State: state}
	for _, l := range labels {
		issue.Labels = append(issue.Labels, github.Label{Name: l})
	}
	f.issues[number] = issue
	if number >= f.next {
		f.next = number + 1
	}
	return issue
}

func (f *fakeTracker) commentsOn(number int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments[number]...)
}

func (f *fakeTracker) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeTracker) EnsureLabel(_ context.Context, name, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("EnsureLabel"); err != nil {
		return err
	}
	f.labels[name] = true
	return nil
}

func (f *fakeTracker) CreateIssue(_ context.Context, title, body string, labels []string) (*github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateIssue"); err != nil {
		return nil, err
	}
	issue := &github.Issue{Number: f.next, Title: title, Body: body, State: github.StateOpen}
	for _, l := range labels {
		issue.Labels = append(issue.Labels, github.Label{Name: l})
	}
	f.issues[issue.Number] = issue
	f.next++
	cp := *issue
	return &cp, nil
}

func (f *fakeTracker) ListIssuesByLabel(_ context.Context, label string) ([]*github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListIssuesByLabel"); err != nil {
		return nil, err
	}
	// GitHub reads labels= as a comma-separated list that must all match.
	var out []*github.Issue
	for _, issue := range f.issues {
		match := true
		for _, name := range strings.Split(label, ",") {
			if !github.HasLabel(issue, strings.TrimSpace(name)) {
				match = false
			}
		}
		if match {
			cp := *issue
			out = append(out, &cp)
		}
	}
	// Newest first, like the GitHub API default sort.
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

func (f *fakeTracker) GetIssue(_ context.Context, number int) (*github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetIssue"); err != nil {
		return nil, err
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, &github.APIError{StatusCode: 404, Body: "Not Found"}
	}
	cp := *issue
	cp.Labels = append([]github.Label(nil), issue.Labels...)
	return &cp, nil
}

func (f *fakeTracker) AddComment(_ context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AddComment"); err != nil {
		return err
	}
	f.comments[number] = append(f.comments[number], body)
	return nil
}

func (f *fakeTracker) UpdateIssue(_ context.Context, number int, state string, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateIssue"); err != nil {
		return err
	}
	issue, ok := f.issues[number]
	if !ok {
		return &github.APIError{StatusCode: 404, Body: "Not Found"}
	}
	if state != "" {
		issue.State = state
	}
	if labels != nil {
		issue.Labels = nil
		for _, l := range labels {
			issue.Labels = append(issue.Labels, github.Label{Name: l})
		}
	}
	return nil
}

func (f *fakeTracker) ListComments(_ context.Context, number int) ([]*github.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListComments"); err != nil {
		return nil, err
	}
	var out []*github.Comment
	for i, body := range f.comments[number] {
		out = append(out, &github.Comment{ID: int64(i + 1), Body: body})
	}
	return out, nil
}
