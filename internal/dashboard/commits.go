package dashboard

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aizenshtat/autonomous-coding-agent/internal/gitops"
)

// commitPanelDepth is how many commits the COMMITS panel lists.
const commitPanelDepth = 8

// commitRefreshInterval is how often the commit list is re-read.
const commitRefreshInterval = 15 * time.Second

var commitSHAStyle = dimStyle

// CommitSource lists the newest commits of the workspace. *gitops.Repo
// implements it.
type CommitSource interface {
	RecentCommits(ctx context.Context, n int) ([]gitops.Commit, error)
}

// commitsMsg carries a refreshed commit list.
type commitsMsg struct {
	commits []gitops.Commit
	err     error
}

type commitTickMsg time.Time

func loadCommits(src CommitSource) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		commits, err := src.RecentCommits(ctx, commitPanelDepth)
		return commitsMsg{commits: commits, err: err}
	}
}

func commitTickCmd() tea.Cmd {
	return tea.Tick(commitRefreshInterval, func(t time.Time) tea.Msg {
		return commitTickMsg(t)
	})
}

func (m Model) renderCommits() string {
	var content strings.Builder

	switch {
	case m.commitErr != nil:
		content.WriteString(statusFailedStyle.Render("  git: " + truncateVisual(m.commitErr.Error(), panelInnerWidth-8)))
	case len(m.commits) == 0:
		content.WriteString("  No commits yet")
	default:
		for i, c := range m.commits {
			if i > 0 {
				content.WriteString("\n")
			}
			sha := c.SHA
			if len(sha) > 7 {
				sha = sha[:7]
			}
			content.WriteString("  " + commitSHAStyle.Render(sha) + " " + truncateVisual(c.Subject, panelInnerWidth-len(sha)-3))
		}
	}

	return renderPanel("COMMITS", content.String())
}
