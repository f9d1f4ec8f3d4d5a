package github

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	githubWebURL = "https://github.com"

	// ProgressBarWidth is the number of cells in a progress bar.
	ProgressBarWidth = 20

	// MaxNamedArtifacts is how many artifact names one comment lists.
	MaxNamedArtifacts = 5

	// MaxSummaryCommits is how many commits the summary links.
	MaxSummaryCommits = 10

	artifactMarkerPrefix = "<!-- agent-artifacts:"
)

var artifactMarkerRe = regexp.MustCompile(`<!-- agent-artifacts:\s*([0-9a-f,\s]*)-->`)

// ProgressBar renders passed/total as a fixed-width bar.
func ProgressBar(passed, total int) string {
	filled := 0
	if total > 0 {
		filled = passed * ProgressBarWidth / total
	}
	if filled > ProgressBarWidth {
		filled = ProgressBarWidth
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", ProgressBarWidth-filled)
}

// ProgressRatio renders "passed/total (pct%)" with the percentage floored.
func ProgressRatio(passed, total int) string {
	pct := 0
	if total > 0 {
		pct = passed * 100 / total
	}
	return fmt.Sprintf("%d/%d (%d%%)", passed, total, pct)
}

// FeatureIssueTitle is the title of the issue tracking feature.
func FeatureIssueTitle(feature string) string {
	return "Feature: " + feature
}

// FeatureIssueBody is the body of a newly created feature issue.
func FeatureIssueBody(feature string) string {
	return fmt.Sprintf("🤖 **Tracking feature `%s`**\n\n"+
		"This issue was opened by the build agent. Progress updates will be posted here as tests pass.\n\n"+
		"### Labels\n"+
		"- `%s` - Feature binding\n"+
		"- `%s` - Build phase\n"+
		"- `%s` - Agent implementation in progress\n",
		feature, FeatureLabel(feature), LabelPhaseBuild, LabelAgentBuilding)
}

// FormatProgressComment renders a progress update.
func FormatProgressComment(passed, total int) string {
	return fmt.Sprintf("🧪 **Test progress**\n\n`%s` %s\n",
		ProgressBar(passed, total), ProgressRatio(passed, total))
}

// FormatCompletionComment renders the comment posted before closing an issue.
func FormatCompletionComment(total int) string {
	return fmt.Sprintf("✅ **All tests passing!**\n\n`%s` %s\n\nClosing this issue as `%s`.\n",
		ProgressBar(total, total), ProgressRatio(total, total), LabelAgentComplete)
}

// FormatArtifactComment lists up to MaxNamedArtifacts names and embeds every
// hash in a hidden marker so the set can be rebuilt from issue history.
func FormatArtifactComment(names, hashes []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📸 **%d new screenshot", len(hashes))
	if len(hashes) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("**\n\n")

	shown := names
	if len(shown) > MaxNamedArtifacts {
		shown = shown[:MaxNamedArtifacts]
	}
	for _, n := range shown {
		fmt.Fprintf(&sb, "- `%s`\n", n)
	}
	if extra := len(names) - len(shown); extra > 0 {
		fmt.Fprintf(&sb, "- ... and %d more\n", extra)
	}

	fmt.Fprintf(&sb, "\n%s %s -->\n", artifactMarkerPrefix, strings.Join(hashes, ","))
	return sb.String()
}

// ParseArtifactMarkers extracts every hash embedded by FormatArtifactComment.
func ParseArtifactMarkers(body string) []string {
	var out []string
	for _, m := range artifactMarkerRe.FindAllStringSubmatch(body, -1) {
		for _, h := range strings.Split(m[1], ",") {
			if h = strings.TrimSpace(h); h != "" {
				out = append(out, h)
			}
		}
	}
	return out
}

// FormatCommitSummary renders `git log --oneline` lines as a linked summary.
func FormatCommitSummary(fullRepo, branch string, oneline []string, now time.Time) string {
	var lines []string
	for _, l := range oneline {
		if l = strings.TrimSpace(l); l == "" {
			continue
		}
		if len(lines) == MaxSummaryCommits {
			break
		}
		sha, msg, _ := strings.Cut(l, " ")
		lines = append(lines, fmt.Sprintf("- [`%s`](%s) %s", sha, CommitURL(fullRepo, sha), msg))
	}

	return fmt.Sprintf("**Commits Pushed** (%s)\n\nBranch: [`%s`](%s)\n\n%s\n",
		now.UTC().Format("2006-01-02 15:04 UTC"),
		branch, BranchURL(fullRepo, branch),
		strings.Join(lines, "\n"))
}

// CommitURL links a commit on github.com.
func CommitURL(fullRepo, sha string) string {
	return fmt.Sprintf("%s/%s/commit/%s", githubWebURL, fullRepo, sha)
}

// BranchURL links a branch tree on github.com.
func BranchURL(fullRepo, branch string) string {
	return fmt.Sprintf("%s/%s/tree/%s", githubWebURL, fullRepo, branch)
}
