package session

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDetectMode(t *testing.T) {
	dir := t.TempDir()
	if got := DetectMode(dir); got != ModeFullBuild {
		t.Errorf("DetectMode() = %s, want Full Build", got)
	}

	if err := os.MkdirAll(filepath.Join(dir, "generated-app"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "generated-app", "package.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := DetectMode(dir); got != ModeEnhancement {
		t.Errorf("DetectMode() = %s, want Enhancement", got)
	}
}

func TestWriteFeatureRequest(t *testing.T) {
	dir := t.TempDir()
	p := &Payload{IssueNumber: 12, IssueTitle: "Add search", IssueBody: "Full text search"}

	path, err := WriteFeatureRequest(dir, p, "agent-runtime", ModeEnhancement)
	if err != nil {
		t.Fatalf("WriteFeatureRequest() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)

	for _, want := range []string{
		"# Feature Request: Issue #12\n",
		"## Title\nAdd search\n",
		"## Description\nFull text search\n",
		"committed to the `agent-runtime` branch",
		"`Ref: #12`",
		"## Mode\nEnhancement\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("feature request missing %q:\n%s", want, got)
		}
	}
}

func TestSessionState(t *testing.T) {
	dir := t.TempDir()
	if ReadState(dir) != nil {
		t.Error("ReadState() on empty dir should be nil")
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := WriteState(dir, "s-1", 5, "running", now); err != nil {
		t.Fatalf("WriteState() error = %v", err)
	}

	got := ReadState(dir)
	want := &State{SessionID: "s-1", CurrentIssue: 5, Status: "running", LastHeartbeat: "2026-01-02T03:04:05Z", WorkingDirectory: dir}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadState() = %+v, want %+v", got, want)
	}

	if err := os.WriteFile(filepath.Join(dir, StateFile), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if ReadState(dir) != nil {
		t.Error("corrupt state should read as nil")
	}
}

func TestAgentArgs(t *testing.T) {
	full := AgentArgs("/app/claude_code.py", "/w", "m", "canopy", ModeFullBuild, "/w/FEATURE_REQUEST.md")
	wantFull := []string{"/app/claude_code.py", "--project", "canopy", "--model", "m", "--output-dir", "/w/generated-app", "--skip-git-init"}
	if !reflect.DeepEqual(full, wantFull) {
		t.Errorf("full build args = %v", full)
	}

	enh := AgentArgs("/app/claude_code.py", "/w", "m", "canopy", ModeEnhancement, "/w/FEATURE_REQUEST.md")
	wantEnh := []string{"/app/claude_code.py", "--enhance-feature", "/w/FEATURE_REQUEST.md", "--existing-codebase", "/w/generated-app", "--model", "m", "--skip-git-init"}
	if !reflect.DeepEqual(enh, wantEnh) {
		t.Errorf("enhancement args = %v", enh)
	}
}
