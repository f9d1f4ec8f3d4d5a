package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Panel width (all panels same width)
const (
	panelTotalWidth = 69 // Total visual width including borders
	panelInnerWidth = 65 // panelTotalWidth - 4 (2 borders + 2 padding spaces)
)

// Styles (muted terminal aesthetic)
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7eb8da")) // steel blue

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3d4450")) // slate

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#7eb8da"))

	statusFailedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#d48a8a")) // dusty rose

	statusCompletedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#7ec699")) // sage green

	progressBarStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#7eb8da"))

	progressEmptyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#3d4450"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c9d1d9"))

	costStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7ec699")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4a054")) // amber
)

// renderPanel builds a panel manually with guaranteed width.
// Structure: ╭─ TITLE ─...─╮ / │ (space) content (space) │ / ╰─...─╯
func renderPanel(title string, content string) string {
	lines := []string{buildTopBorder(title), buildEmptyLine()}
	for _, line := range strings.Split(content, "\n") {
		lines = append(lines, buildContentLine(line))
	}
	lines = append(lines, buildEmptyLine(), buildBottomBorder())
	return strings.Join(lines, "\n")
}

func buildTopBorder(title string) string {
	titleUpper := strings.ToUpper(title)
	prefix := "╭─ "
	prefixWidth := lipgloss.Width(prefix + titleUpper + " ")

	dashCount := panelTotalWidth - prefixWidth - 1 // -1 for ╮
	if dashCount < 0 {
		dashCount = 0
	}
	return borderStyle.Render(prefix) + labelStyle.Render(titleUpper) + borderStyle.Render(" "+strings.Repeat("─", dashCount)+"╮")
}

func buildBottomBorder() string {
	return borderStyle.Render("╰" + strings.Repeat("─", panelTotalWidth-2) + "╯")
}

func buildEmptyLine() string {
	border := borderStyle.Render("│")
	return border + strings.Repeat(" ", panelTotalWidth-2) + border
}

func buildContentLine(content string) string {
	adjusted := padOrTruncate(content, panelTotalWidth-4)
	border := borderStyle.Render("│")
	return border + " " + adjusted + " " + border
}

// padOrTruncate ensures content is exactly targetWidth visual chars
func padOrTruncate(s string, targetWidth int) string {
	visualWidth := lipgloss.Width(s)
	if visualWidth == targetWidth {
		return s
	}
	if visualWidth > targetWidth {
		return truncateVisual(s, targetWidth)
	}
	return s + strings.Repeat(" ", targetWidth-visualWidth)
}

// truncateVisual truncates s to targetWidth visual chars, adding "..." only
// when something was cut.
func truncateVisual(s string, targetWidth int) string {
	if lipgloss.Width(s) <= targetWidth {
		return s
	}
	if targetWidth <= 3 {
		return strings.Repeat(".", targetWidth)
	}

	var b strings.Builder
	width := 0
	for _, r := range s {
		runeWidth := lipgloss.Width(string(r))
		if width+runeWidth > targetWidth-3 {
			break
		}
		b.WriteRune(r)
		width += runeWidth
	}
	for width < targetWidth-3 {
		b.WriteByte(' ')
		width++
	}
	return b.String() + "..."
}

// dotLeader creates a dot-leader line: "  Label .............. Value"
func dotLeader(label string, value string, totalWidth int) string {
	return dotLeaderStyled(label, value, lipgloss.NewStyle(), totalWidth)
}

// dotLeaderStyled is dotLeader with a styled value. Width is computed from
// the raw value.
func dotLeaderStyled(label string, value string, style lipgloss.Style, totalWidth int) string {
	prefix := "  " + label + " "
	suffix := " " + value
	dotsNeeded := totalWidth - lipgloss.Width(prefix) - lipgloss.Width(suffix)
	if dotsNeeded < 3 {
		dotsNeeded = 3
	}
	return prefix + strings.Repeat(".", dotsNeeded) + " " + style.Render(value)
}

// formatCompact formats a number in compact form: 0, 999, 1.0K, 57.3K, 1.2M.
func formatCompact(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
}

// formatHours renders fractional hours as "3h12m".
func formatHours(h float64) string {
	return formatDurationCompact(time.Duration(h * float64(time.Hour)))
}

// formatDurationCompact formats a duration compactly (e.g., "2m30s", "1h5m").
func formatDurationCompact(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%dm", h, m)
}

func formatTimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return t.Format("Jan 2")
}

func renderProgressBar(progress int, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := progress * width / 100
	bar := progressBarStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", width-filled))
	return "[" + bar + "]"
}
