// Package dashboard implements the `vps-agent watch` terminal UI. It polls
// the status file and renders the session, its health checks and recent
// activity.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aizenshtat/autonomous-coding-agent/internal/banner"
	"github.com/aizenshtat/autonomous-coding-agent/internal/gitops"
	"github.com/aizenshtat/autonomous-coding-agent/internal/health"
	"github.com/aizenshtat/autonomous-coding-agent/internal/journal"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
	"github.com/aizenshtat/autonomous-coding-agent/internal/reconcile"
	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
)

const (
	defaultRefresh = 2 * time.Second
	journalDepth   = 6
	errorDepth     = 5
)

// StatusSource provides the current status snapshot.
type StatusSource interface {
	Read() status.Snapshot
}

// HistorySource lists journaled reconciliation actions. *journal.Journal
// implements it.
type HistorySource interface {
	History(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

// Options configures the watch UI. Only Source is required.
type Options struct {
	Source     StatusSource
	Commits    CommitSource
	History    HistorySource
	StaleAfter time.Duration
	Refresh    time.Duration
	Version    string
	Now        func() time.Time
}

// Model is the TUI model
type Model struct {
	opts Options

	snap   status.Snapshot
	report *health.Report

	commits   []gitops.Commit
	commitErr error

	entries    []journal.Entry
	journalErr error

	width       int
	height      int
	showJournal bool
	quitting    bool
}

// tickMsg is sent periodically to re-read the status file
type tickMsg time.Time

// snapshotMsg carries a fresh snapshot and its evaluation.
type snapshotMsg struct {
	snap   status.Snapshot
	report *health.Report
}

// historyMsg carries the newest journal entries.
type historyMsg struct {
	entries []journal.Entry
	err     error
}

// NewModel creates a new dashboard model
func NewModel(opts Options) Model {
	if opts.Refresh <= 0 {
		opts.Refresh = defaultRefresh
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return Model{
		opts:        opts,
		snap:        status.Snapshot{},
		showJournal: opts.History != nil,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadSnapshot(), m.tickCmd(), tea.EnterAltScreen}
	if m.opts.Commits != nil {
		cmds = append(cmds, loadCommits(m.opts.Commits), commitTickCmd())
	}
	if m.opts.History != nil {
		cmds = append(cmds, m.loadHistory())
	}
	return tea.Batch(cmds...)
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) loadSnapshot() tea.Cmd {
	src, now, staleAfter := m.opts.Source, m.opts.Now, m.opts.StaleAfter
	return func() tea.Msg {
		snap := src.Read()
		return snapshotMsg{snap: snap, report: health.Evaluate(snap, now(), staleAfter)}
	}
}

func (m Model) loadHistory() tea.Cmd {
	src := m.opts.History
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		entries, err := src.History(ctx, journal.Filter{Limit: journalDepth})
		return historyMsg{entries: entries, err: err}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "h":
			if m.opts.History != nil {
				m.showJournal = !m.showJournal
			}
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		cmds := []tea.Cmd{m.loadSnapshot(), m.tickCmd()}
		if m.opts.History != nil && m.showJournal {
			cmds = append(cmds, m.loadHistory())
		}
		return m, tea.Batch(cmds...)

	case commitTickMsg:
		return m, tea.Batch(loadCommits(m.opts.Commits), commitTickCmd())

	case snapshotMsg:
		m.snap = msg.snap
		m.report = msg.report

	case commitsMsg:
		m.commits, m.commitErr = msg.commits, msg.err

	case historyMsg:
		m.entries, m.journalErr = msg.entries, msg.err
	}

	return m, nil
}

func (m Model) refresh() tea.Cmd {
	cmds := []tea.Cmd{m.loadSnapshot()}
	if m.opts.Commits != nil {
		cmds = append(cmds, loadCommits(m.opts.Commits))
	}
	if m.opts.History != nil {
		cmds = append(cmds, m.loadHistory())
	}
	return tea.Batch(cmds...)
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Watch stopped.\n"
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(strings.TrimPrefix(banner.Logo, "\n")))
	b.WriteString(titleStyle.Render("   vps-agent " + m.opts.Version))
	b.WriteString("\n\n")

	b.WriteString(m.renderSession())
	b.WriteString("\n")
	b.WriteString(m.renderHealth())
	b.WriteString("\n")
	b.WriteString(m.renderActivity())
	b.WriteString("\n")

	if m.opts.Commits != nil {
		b.WriteString(m.renderCommits())
		b.WriteString("\n")
	}
	if m.showJournal {
		b.WriteString(m.renderJournal())
		b.WriteString("\n")
	}
	if len(m.snap.List("errors")) > 0 {
		b.WriteString(m.renderErrors())
		b.WriteString("\n")
	}

	help := "q: quit  r: refresh"
	if m.opts.History != nil {
		help += "  h: journal"
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case health.StateRunning:
		return statusRunningStyle
	case health.StateCompleted:
		return statusCompletedStyle
	case health.StateError:
		return statusFailedStyle
	}
	return dimStyle
}

func (m Model) renderSession() string {
	var content strings.Builder
	w := panelInnerWidth
	snap := m.snap

	if snap.String("session_id") == "" {
		content.WriteString("  No session recorded")
		return renderPanel("SESSION", content.String())
	}

	content.WriteString(dotLeader("Session", snap.String("session_id"), w))
	content.WriteString("\n")
	content.WriteString(dotLeader("Issue", fmt.Sprintf("#%d", snap.Int("current_issue")), w))
	content.WriteString("\n")
	if mode := snap.String("mode"); mode != "" {
		content.WriteString(dotLeader("Mode", mode, w))
		content.WriteString("\n")
	}
	state := snap.String("status")
	content.WriteString(dotLeaderStyled("Status", state, stateStyle(state), w))

	if started, ok := snap.Time("session_started"); ok {
		content.WriteString("\n")
		content.WriteString(dotLeader("Started", formatTimeAgo(started, m.opts.Now()), w))
	}

	elapsed := snap.Float("elapsed_hours")
	remaining := snap.Float("remaining_hours")
	if total := elapsed + remaining; total > 0 {
		pct := int(elapsed / total * 100)
		content.WriteString("\n\n")
		content.WriteString(fmt.Sprintf("  %s  %s / %s",
			renderProgressBar(pct, 30), formatHours(elapsed), formatHours(total)))
	}

	return renderPanel("SESSION", content.String())
}

func (m Model) renderHealth() string {
	var content strings.Builder

	if m.report == nil {
		content.WriteString("  Waiting for status...")
		return renderPanel("HEALTH", content.String())
	}

	for i, c := range m.report.Checks {
		if i > 0 {
			content.WriteString("\n")
		}
		line := fmt.Sprintf("  %s %-10s %s", c.Status.ColorSymbol(), c.Name, c.Message)
		content.WriteString(truncateVisual(line, panelInnerWidth))
	}

	overall := m.report.Overall()
	style := statusCompletedStyle
	switch overall {
	case health.StatusError:
		style = statusFailedStyle
	case health.StatusWarning:
		style = warningStyle
	}
	content.WriteString("\n\n")
	content.WriteString(dotLeaderStyled("Overall", overall.String(), style, panelInnerWidth))

	return renderPanel("HEALTH", content.String())
}

func (m Model) renderActivity() string {
	var content strings.Builder
	w := panelInnerWidth
	snap := m.snap
	now := m.opts.Now()

	commits := fmt.Sprintf("%d", snap.Int("total_commits"))
	if last, ok := snap.Time("last_push"); ok {
		commits += " (last " + formatTimeAgo(last, now) + ")"
	}
	content.WriteString(dotLeader("Commits", commits, w))
	content.WriteString("\n")

	if failed, ok := snap.Time("last_push_failed"); ok {
		content.WriteString(dotLeaderStyled("Push failed", formatTimeAgo(failed, now), warningStyle, w))
		content.WriteString("\n")
	}

	content.WriteString(dotLeader("Screenshots", fmt.Sprintf("%d", snap.Int("total_screenshots")), w))
	content.WriteString("\n")
	content.WriteString(dotLeaderStyled("Cost", fmt.Sprintf("$%.2f", snap.Float("cost_usd")), costStyle, w))
	content.WriteString("\n")
	content.WriteString(dotLeader("API calls", formatCompact(snap.Int("api_calls")), w))
	content.WriteString("\n")
	content.WriteString(dotLeader("Tokens", fmt.Sprintf("%s in  %s out",
		formatCompact(snap.Int("input_tokens")), formatCompact(snap.Int("output_tokens"))), w))

	return renderPanel("ACTIVITY", content.String())
}

func (m Model) renderJournal() string {
	var content strings.Builder

	switch {
	case m.journalErr != nil:
		content.WriteString(statusFailedStyle.Render("  journal: " + m.journalErr.Error()))
	case len(m.entries) == 0:
		content.WriteString("  No reconciliation actions yet")
	default:
		now := m.opts.Now()
		for i, e := range m.entries {
			if i > 0 {
				content.WriteString("\n")
			}
			icon, style := "✓", statusCompletedStyle
			if e.Result == string(reconcile.ResultFailed) {
				icon, style = "✗", statusFailedStyle
			}
			target := e.Feature
			if e.Issue > 0 {
				target = fmt.Sprintf("#%d %s", e.Issue, e.Feature)
			}
			line := fmt.Sprintf("  %s %-8s %s", style.Render(icon), e.Action, target)
			ago := formatTimeAgo(e.CreatedAt, now)
			content.WriteString(padOrTruncate(line, panelInnerWidth-lipgloss.Width(ago)) + dimStyle.Render(ago))
		}
	}

	return renderPanel("JOURNAL", content.String())
}

func (m Model) renderErrors() string {
	var content strings.Builder

	errs := m.snap.List("errors")
	start := len(errs) - errorDepth
	if start < 0 {
		start = 0
	}
	for i, e := range errs[start:] {
		if i > 0 {
			content.WriteString("\n")
		}
		kind, _ := e["type"].(string)
		ts, _ := e["timestamp"].(string)
		content.WriteString(fmt.Sprintf("  %s  %s", warningStyle.Render(kind), dimStyle.Render(ts)))
	}
	if start > 0 {
		content.WriteString(fmt.Sprintf("\n  ... %d earlier", start))
	}

	return renderPanel(fmt.Sprintf("ERRORS (%d)", len(errs)), content.String())
}

// Run starts the watch UI and blocks until the user quits. Log output is
// suppressed so it does not tear the display.
func Run(opts Options) error {
	logging.Suppress()

	p := tea.NewProgram(
		NewModel(opts),
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
