package bubbletea

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/relay"
)

// Styles maps a Theme to lipgloss styles for TUI rendering.
type Styles struct {
	Plugin     lipgloss.Style
	Agent      lipgloss.Style
	ToolCall   lipgloss.Style
	Error      lipgloss.Style
	Success    lipgloss.Style
	Muted      lipgloss.Style
	Accent     lipgloss.Style
	Focused    lipgloss.Style
	ToolBg     lipgloss.Style
	ErrorBg    lipgloss.Style
	StatusLine lipgloss.Style
}

// NewStyles creates Styles from a Theme.
func NewStyles(t relay.Theme) Styles {
	return Styles{
		Plugin:     lipgloss.NewStyle().Foreground(ansiColor(t.Plugin)).Bold(true),
		Agent:      lipgloss.NewStyle().Foreground(ansiColor(t.Agent)).Bold(true),
		ToolCall:   lipgloss.NewStyle().Foreground(ansiColor(t.ToolCall)),
		Error:      lipgloss.NewStyle().Foreground(ansiColor(t.Error)),
		Success:    lipgloss.NewStyle().Foreground(ansiColor(t.Success)),
		Muted:      lipgloss.NewStyle().Foreground(ansiColor(t.Muted)).Faint(true),
		Accent:     lipgloss.NewStyle().Foreground(ansiColor(t.Accent)).Bold(true),
		Focused:    lipgloss.NewStyle().Foreground(ansiColor(t.Accent)),
		ToolBg:     lipgloss.NewStyle().Background(ansiColor(t.CodeBg)).PaddingLeft(1),
		ErrorBg:    lipgloss.NewStyle().Background(ansiColor(t.CodeBg)).PaddingLeft(1),
		StatusLine: lipgloss.NewStyle().Foreground(ansiColor(t.Muted)),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}
