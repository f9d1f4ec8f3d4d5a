// Package session holds the per-run inputs of the supervisor: the dispatch
// payload, agent credentials, the feature request handed to the agent and the
// session state file left in the workspace.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultMode is used when the payload does not name one.
const DefaultMode = "build-from-issue"

// ErrMissingField is returned when the payload lacks issue_number or github_repo.
var ErrMissingField = errors.New("missing issue_number or github_repo in payload")

// Payload is the JSON document passed in AGENT_PAYLOAD.
type Payload struct {
	Mode          string `json:"mode"`
	IssueNumber   int    `json:"issue_number"`
	GitHubRepo    string `json:"github_repo"`
	IssueTitle    string `json:"issue_title"`
	IssueBody     string `json:"issue_body"`
	ResumeSession bool   `json:"resume_session"`
}

// ParsePayload decodes raw and fills defaults. An empty string is treated as
// an empty object, which then fails validation.
func ParsePayload(raw string) (*Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("invalid AGENT_PAYLOAD JSON: %w", err)
	}
	if p.IssueNumber <= 0 || p.GitHubRepo == "" {
		return nil, ErrMissingField
	}

	if p.Mode == "" {
		p.Mode = DefaultMode
	}
	if p.IssueTitle == "" {
		p.IssueTitle = fmt.Sprintf("Issue #%d", p.IssueNumber)
	}
	return &p, nil
}

// ID returns SESSION_ID when set, otherwise a fresh "vps-" id.
func ID(getenv func(string) string) string {
	if getenv != nil {
		if id := getenv("SESSION_ID"); id != "" {
			return id
		}
	}
	return "vps-" + uuid.NewString()[:8]
}
