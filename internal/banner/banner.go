// Package banner prints the CLI startup header and the plain-text health
// report used by `vps-agent status`.
package banner

import (
	"fmt"
	"io"
	"strings"

	"github.com/aizenshtat/autonomous-coding-agent/internal/health"
)

// Logo is the ASCII art logo.
const Logo = `
   ██╗   ██╗██████╗ ███████╗
   ██║   ██║██╔══██╗██╔════╝
   ██║   ██║██████╔╝███████╗
   ╚██╗ ██╔╝██╔═══╝ ╚════██║
    ╚████╔╝ ██║     ███████║
     ╚═══╝  ╚═╝     ╚══════╝
`

// Tagline is the project tagline
const Tagline = "Autonomous coding sessions, supervised"

// StartupInfo is what the run command knows before launching the agent.
type StartupInfo struct {
	Version   string
	SessionID string
	Repo      string
	Issue     int
	Mode      string
	Workspace string
}

// StartupBanner prints the full startup banner
func StartupBanner(w io.Writer, info StartupInfo) {
	fmt.Fprint(w, Logo)
	fmt.Fprintf(w, "   %s\n", Tagline)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "   Version:    %s\n", info.Version)
	fmt.Fprintf(w, "   Session:    %s\n", info.SessionID)
	fmt.Fprintf(w, "   Issue:      %s#%d\n", info.Repo, info.Issue)
	if info.Mode != "" {
		fmt.Fprintf(w, "   Mode:       %s\n", info.Mode)
	}
	if info.Workspace != "" {
		fmt.Fprintf(w, "   Workspace:  %s\n", info.Workspace)
	}
	fmt.Fprintln(w)
}

// PrintReport prints one line per check followed by the fix hints of
// failing checks.
func PrintReport(w io.Writer, report *health.Report) {
	fmt.Fprintln(w)
	header := "VPS AGENT"
	if report.SessionID != "" {
		header += " │ " + report.SessionID
	}
	if report.Issue > 0 {
		header += fmt.Sprintf(" │ issue #%d", report.Issue)
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("━", 40))

	for _, c := range report.Checks {
		fmt.Fprintf(w, "%s %-10s %s\n", c.Status.ColorSymbol(), c.Name, c.Message)
	}

	hasFix := false
	for _, c := range report.Checks {
		if c.Fix == "" || c.Status != health.StatusError {
			continue
		}
		if !hasFix {
			fmt.Fprintln(w)
			hasFix = true
		}
		fmt.Fprintf(w, "  * %s: %s\n", c.Name, c.Fix)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Overall: %s\n", report.Overall())
}
