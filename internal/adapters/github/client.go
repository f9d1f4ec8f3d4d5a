package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	githubAPIURL = "https://api.github.com"
	perPage      = 100
)

// Client is a GitHub REST API client
type Client struct {
	token          string
	httpClient     *http.Client
	baseURL        string // For testing - defaults to githubAPIURL
	limiter        *rate.Limiter
	retry          RetryOptions
	requestTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit paces requests with a token bucket.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetryOptions sets how failed requests are retried.
func WithRetryOptions(opts RetryOptions) ClientOption {
	return func(c *Client) {
		c.retry = opts
	}
}

// WithRequestTimeout bounds each request attempt.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// NewClient creates a new GitHub client
func NewClient(token string, opts ...ClientOption) *Client {
	return NewClientWithBaseURL(token, githubAPIURL, opts...)
}

// NewClientWithBaseURL creates a new GitHub client with a custom base URL (for testing)
func NewClientWithBaseURL(token, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		token:          token,
		baseURL:        baseURL,
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Limit(5), 10),
		retry:          RetryOptions{},
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds a client from adapter configuration.
func NewClientFromConfig(cfg *Config) *Client {
	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = githubAPIURL
	}
	retry := DefaultRetryOptions()
	retry.MaxRetries = cfg.MaxRetries
	return NewClientWithBaseURL(cfg.Token, baseURL,
		WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		WithRequestTimeout(cfg.RequestTimeout),
		WithRetryOptions(retry),
	)
}

// Issue represents a GitHub issue
type Issue struct {
	ID          int64     `json:"id"`
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	Labels      []Label   `json:"labels"`
	HTMLURL     string    `json:"html_url"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LabelNames returns the names of the issue's labels in order.
func (i *Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

// Label represents a GitHub label
type Label struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// User represents a GitHub user
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Comment represents a GitHub issue comment
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      User      `json:"user"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

// IssueInput is the payload for creating an issue
type IssueInput struct {
	Title  string   `json:"title"`
	Body   string   `json:"body,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// IssueUpdate is the payload for editing an issue. Empty fields are left unchanged.
type IssueUpdate struct {
	State  string   `json:"state,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// doRequest performs an HTTP request to the GitHub API
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// CreateLabel creates a repository label. A label that already exists is not an error.
func (c *Client) CreateLabel(ctx context.Context, owner, repo string, label Label) error {
	err := WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/labels", owner, repo)
		return c.doRequest(ctx, http.MethodPost, path, label, nil)
	}, c.retry)
	if IsAlreadyExists(err) {
		return nil
	}
	return err
}

// CreateIssue creates a new issue in a repository
func (c *Client) CreateIssue(ctx context.Context, owner, repo string, input *IssueInput) (*Issue, error) {
	return WithRetry(ctx, func() (*Issue, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
		var issue Issue
		if err := c.doRequest(ctx, http.MethodPost, path, input, &issue); err != nil {
			return nil, err
		}
		return &issue, nil
	}, c.retry)
}

// ListIssuesByLabel lists issues in any state carrying label. Pull requests
// returned by the issues endpoint are dropped.
func (c *Client) ListIssuesByLabel(ctx context.Context, owner, repo, label string) ([]*Issue, error) {
	var all []*Issue
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("labels", label)
		query.Set("state", StateAll)
		query.Set("per_page", strconv.Itoa(perPage))
		query.Set("page", strconv.Itoa(page))
		path := fmt.Sprintf("/repos/%s/%s/issues?%s", owner, repo, query.Encode())

		issues, err := WithRetry(ctx, func() ([]*Issue, error) {
			var issues []*Issue
			if err := c.doRequest(ctx, http.MethodGet, path, nil, &issues); err != nil {
				return nil, err
			}
			return issues, nil
		}, c.retry)
		if err != nil {
			return nil, err
		}

		for _, issue := range issues {
			if issue.PullRequest == nil {
				all = append(all, issue)
			}
		}
		if len(issues) < perPage {
			return all, nil
		}
	}
}

// GetIssue fetches an issue by owner, repo, and number
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	return WithRetry(ctx, func() (*Issue, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
		var issue Issue
		if err := c.doRequest(ctx, http.MethodGet, path, nil, &issue); err != nil {
			return nil, err
		}
		return &issue, nil
	}, c.retry)
}

// AddComment adds a comment to an issue
func (c *Client) AddComment(ctx context.Context, owner, repo string, number int, body string) (*Comment, error) {
	return WithRetry(ctx, func() (*Comment, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
		reqBody := map[string]string{"body": body}
		var comment Comment
		if err := c.doRequest(ctx, http.MethodPost, path, reqBody, &comment); err != nil {
			return nil, err
		}
		return &comment, nil
	}, c.retry)
}

// UpdateIssue edits an issue's state and replaces its label set.
func (c *Client) UpdateIssue(ctx context.Context, owner, repo string, number int, update *IssueUpdate) (*Issue, error) {
	return WithRetry(ctx, func() (*Issue, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
		var issue Issue
		if err := c.doRequest(ctx, http.MethodPatch, path, update, &issue); err != nil {
			return nil, err
		}
		return &issue, nil
	}, c.retry)
}

// ListComments returns every comment on an issue, oldest first.
func (c *Client) ListComments(ctx context.Context, owner, repo string, number int) ([]*Comment, error) {
	var all []*Comment
	for page := 1; ; page++ {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments?per_page=%d&page=%d", owner, repo, number, perPage, page)

		comments, err := WithRetry(ctx, func() ([]*Comment, error) {
			var comments []*Comment
			if err := c.doRequest(ctx, http.MethodGet, path, nil, &comments); err != nil {
				return nil, err
			}
			return comments, nil
		}, c.retry)
		if err != nil {
			return nil, err
		}

		all = append(all, comments...)
		if len(comments) < perPage {
			return all, nil
		}
	}
}

// HasLabel checks if an issue has a specific label (case-insensitive)
func HasLabel(issue *Issue, labelName string) bool {
	for _, label := range issue.Labels {
		if strings.EqualFold(label.Name, labelName) {
			return true
		}
	}
	return false
}
