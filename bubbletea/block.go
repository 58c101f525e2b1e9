package bubbletea

import tea "github.com/charmbracelet/bubbletea"

// MessageBlock is a renderable element of the transcript.
// Unlike tea.Model, View takes a width parameter so the root model
// controls layout and blocks are testable in isolation.
type MessageBlock interface {
	Update(tea.Msg) (MessageBlock, tea.Cmd)
	View(width int) string
}

// ToggleMsg tells a collapsible block to toggle its collapsed state.
type ToggleMsg struct{}

// SetCollapsedMsg sets the collapsed state of a collapsible block.
type SetCollapsedMsg struct {
	Collapsed bool
}

// collapsible reports whether b responds to ToggleMsg.
func collapsible(b MessageBlock) bool {
	switch b.(type) {
	case *ToolCallBlock, *ToolResultBlock:
		return true
	}
	return false
}

// blockSeparator returns the gap between two adjacent blocks. Tool calls
// and results form a compact group; everything else is separated by a
// blank line.
func blockSeparator(prev, curr MessageBlock) string {
	if collapsible(prev) && collapsible(curr) {
		return "\n"
	}
	return "\n\n"
}
