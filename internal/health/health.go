// Package health publishes supervisor lifecycle events into the status store
// and evaluates a status snapshot into an operator-facing health report.
package health

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Status represents the outcome of a single check.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusDisabled
)

// Check represents a health check result.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

// Symbol returns the symbol for a status.
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "○"
	case StatusError:
		return "✗"
	case StatusDisabled:
		return "·"
	default:
		return "?"
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name in JSON responses.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for _, st := range []Status{StatusOK, StatusWarning, StatusError, StatusDisabled} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown health status %q", text)
}

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	disableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// ColorSymbol returns Symbol rendered in the status color.
func (s Status) ColorSymbol() string {
	switch s {
	case StatusOK:
		return okStyle.Render(s.Symbol())
	case StatusWarning:
		return warnStyle.Render(s.Symbol())
	case StatusError:
		return errorStyle.Render(s.Symbol())
	default:
		return disableStyle.Render(s.Symbol())
	}
}
