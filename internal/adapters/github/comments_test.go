package github

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		passed, total int
		filled        int
	}{
		{0, 0, 0},
		{0, 4, 0},
		{1, 2, 10},
		{1, 3, 6},
		{2, 2, 20},
		{5, 2, 20},
	}

	for _, tt := range tests {
		bar := ProgressBar(tt.passed, tt.total)
		if n := strings.Count(bar, "█"); n != tt.filled {
			t.Errorf("ProgressBar(%d, %d) filled = %d, want %d", tt.passed, tt.total, n, tt.filled)
		}
		if n := len([]rune(bar)); n != ProgressBarWidth {
			t.Errorf("ProgressBar(%d, %d) width = %d", tt.passed, tt.total, n)
		}
	}
}

func TestProgressRatio(t *testing.T) {
	tests := []struct {
		passed, total int
		want          string
	}{
		{1, 2, "1/2 (50%)"},
		{2, 3, "2/3 (66%)"},
		{0, 0, "0/0 (0%)"},
		{4, 4, "4/4 (100%)"},
	}
	for _, tt := range tests {
		if got := ProgressRatio(tt.passed, tt.total); got != tt.want {
			t.Errorf("ProgressRatio(%d, %d) = %q, want %q", tt.passed, tt.total, got, tt.want)
		}
	}
}

func TestFormatProgressComment(t *testing.T) {
	body := FormatProgressComment(1, 2)
	if !strings.Contains(body, "1/2 (50%)") {
		t.Errorf("progress comment missing ratio:\n%s", body)
	}
	if !strings.Contains(body, strings.Repeat("█", 10)+strings.Repeat("░", 10)) {
		t.Errorf("progress comment missing bar:\n%s", body)
	}
}

func TestFormatCompletionComment(t *testing.T) {
	body := FormatCompletionComment(3)
	if !strings.Contains(body, "3/3 (100%)") || !strings.Contains(body, LabelAgentComplete) {
		t.Errorf("completion comment = %q", body)
	}
}

func TestFeatureIssueTemplate(t *testing.T) {
	if got := FeatureIssueTitle("login"); got != "Feature: login" {
		t.Errorf("title = %q", got)
	}
	if body := FeatureIssueBody("login"); !strings.Contains(body, "`feature:login`") {
		t.Errorf("body = %q", body)
	}
}

func TestFormatArtifactComment(t *testing.T) {
	names := []string{"a.png", "b.png", "c.png", "d.png", "e.png", "f.png", "g.png"}
	hashes := []string{"aaaaaaaaaaaa", "bbbbbbbbbbbb", "cccccccccccc", "dddddddddddd", "eeeeeeeeeeee", "ffffffffffff", "000000000000"}

	body := FormatArtifactComment(names, hashes)

	if !strings.Contains(body, "7 new screenshots") {
		t.Errorf("missing count:\n%s", body)
	}
	for _, n := range names[:5] {
		if !strings.Contains(body, n) {
			t.Errorf("missing %s", n)
		}
	}
	if strings.Contains(body, "f.png") {
		t.Error("listed more than five names")
	}
	if !strings.Contains(body, "... and 2 more") {
		t.Errorf("missing overflow note:\n%s", body)
	}
	if !strings.Contains(body, "<!-- agent-artifacts: "+strings.Join(hashes, ",")+" -->") {
		t.Errorf("missing marker:\n%s", body)
	}
	if got := ParseArtifactMarkers(body); !reflect.DeepEqual(got, hashes) {
		t.Errorf("ParseArtifactMarkers() = %v, want all seven hashes", got)
	}
}

func TestFormatArtifactCommentSingle(t *testing.T) {
	body := FormatArtifactComment([]string{"only.png"}, []string{"abcdef012345"})
	if !strings.Contains(body, "1 new screenshot**") {
		t.Errorf("singular form wrong:\n%s", body)
	}
	if strings.Contains(body, "more") {
		t.Error("unexpected overflow note")
	}
}

func TestParseArtifactMarkers(t *testing.T) {
	body := "intro\n<!-- agent-artifacts: abc123abc123 -->\ntext <!-- agent-artifacts: def456def456,0123456789ab -->\n<!-- unrelated -->"
	want := []string{"abc123abc123", "def456def456", "0123456789ab"}
	if got := ParseArtifactMarkers(body); !reflect.DeepEqual(got, want) {
		t.Errorf("ParseArtifactMarkers() = %v, want %v", got, want)
	}
	if got := ParseArtifactMarkers("no markers here"); len(got) != 0 {
		t.Errorf("ParseArtifactMarkers() = %v, want none", got)
	}
}

func TestFormatCommitSummary(t *testing.T) {
	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, "abc12"+string(rune('a'+i))+" commit message")
	}
	now := time.Date(2026, 2, 3, 4, 5, 0, 0, time.UTC)

	body := FormatCommitSummary("acme/app", "agent-runtime", lines, now)

	if !strings.HasPrefix(body, "**Commits Pushed** (2026-02-03 04:05 UTC)") {
		t.Errorf("header = %q", strings.SplitN(body, "\n", 2)[0])
	}
	if !strings.Contains(body, "Branch: [`agent-runtime`](https://github.com/acme/app/tree/agent-runtime)") {
		t.Errorf("missing branch link:\n%s", body)
	}
	if got := strings.Count(body, "](https://github.com/acme/app/commit/"); got != 10 {
		t.Errorf("linked commits = %d, want 10", got)
	}
	if !strings.Contains(body, "- [`abc12a`](https://github.com/acme/app/commit/abc12a) commit message") {
		t.Errorf("commit line format wrong:\n%s", body)
	}
}
