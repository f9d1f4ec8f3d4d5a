package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aizenshtat/autonomous-coding-agent/internal/fileutil"
)

const (
	FeatureRequestFile = "FEATURE_REQUEST.md"
	StateFile          = "session_state.json"
	appDir             = "generated-app"
)

// Mode is the kind of build the agent performs.
type Mode string

const (
	ModeFullBuild   Mode = "Full Build"
	ModeEnhancement Mode = "Enhancement"
)

// DetectMode reports Enhancement when the workspace already holds an app.
func DetectMode(dir string) Mode {
	if _, err := os.Stat(filepath.Join(dir, appDir, "package.json")); err == nil {
		return ModeEnhancement
	}
	return ModeFullBuild
}

// FeatureRequest renders the markdown brief handed to the agent.
func FeatureRequest(p *Payload, branch string, mode Mode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Feature Request: Issue #%d\n\n", p.IssueNumber)
	fmt.Fprintf(&sb, "## Title\n%s\n\n", p.IssueTitle)
	fmt.Fprintf(&sb, "## Description\n%s\n\n", p.IssueBody)
	fmt.Fprintf(&sb, "## Branch\nAll work should be committed to the `%s` branch.\n", branch)
	fmt.Fprintf(&sb, "Commits should reference this issue: `Ref: #%d`\n\n", p.IssueNumber)
	fmt.Fprintf(&sb, "## Mode\n%s\n", mode)
	return sb.String()
}

// WriteFeatureRequest writes FEATURE_REQUEST.md into dir and returns its path.
func WriteFeatureRequest(dir string, p *Payload, branch string, mode Mode) (string, error) {
	path := filepath.Join(dir, FeatureRequestFile)
	if err := fileutil.WriteFile(path, []byte(FeatureRequest(p, branch, mode))); err != nil {
		return "", fmt.Errorf("failed to write feature request: %w", err)
	}
	return path, nil
}

// State is the content of session_state.json.
type State struct {
	SessionID        string `json:"session_id"`
	CurrentIssue     int    `json:"current_issue"`
	Status           string `json:"status"`
	LastHeartbeat    string `json:"last_heartbeat"`
	WorkingDirectory string `json:"working_directory"`
}

// WriteState records the session state in dir.
func WriteState(dir, sessionID string, issue int, status string, now time.Time) error {
	s := State{
		SessionID:        sessionID,
		CurrentIssue:     issue,
		Status:           status,
		LastHeartbeat:    now.UTC().Format(time.RFC3339),
		WorkingDirectory: dir,
	}
	if err := fileutil.WriteJSON(filepath.Join(dir, StateFile), s); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}

// ReadState returns the session state in dir, or nil when absent or corrupt.
func ReadState(dir string) *State {
	data, err := os.ReadFile(filepath.Join(dir, StateFile))
	if err != nil {
		return nil
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}

// AgentArgs builds the agent script arguments for mode.
func AgentArgs(script, dir, model, project string, mode Mode, featureRequest string) []string {
	app := filepath.Join(dir, appDir)
	if mode == ModeEnhancement && featureRequest != "" {
		return []string{
			script,
			"--enhance-feature", featureRequest,
			"--existing-codebase", app,
			"--model", model,
			"--skip-git-init",
		}
	}
	return []string{
		script,
		"--project", project,
		"--model", model,
		"--output-dir", app,
		"--skip-git-init",
	}
}
