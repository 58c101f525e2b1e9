package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rivo/uniseg"
)

var _ MessageBlock = (*ToolCallBlock)(nil)

// ToolCallBlock renders a tool call with a collapsible parameter view.
type ToolCallBlock struct {
	id        string
	command   string
	params    any
	collapsed bool
	focused   bool
	styles    Styles
}

// NewToolCallBlock creates a ToolCallBlock that starts collapsed.
func NewToolCallBlock(id, command string, params any, styles Styles) *ToolCallBlock {
	return &ToolCallBlock{id: id, command: command, params: params, collapsed: true, styles: styles}
}

// ID returns the tool call id.
func (b *ToolCallBlock) ID() string { return b.id }

// Command returns the called command.
func (b *ToolCallBlock) Command() string { return b.command }

// Collapsed reports whether the parameters are hidden.
func (b *ToolCallBlock) Collapsed() bool { return b.collapsed }

func (b *ToolCallBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	switch msg := msg.(type) {
	case ToggleMsg:
		b.collapsed = !b.collapsed
	case SetCollapsedMsg:
		b.collapsed = msg.Collapsed
	case focusMsg:
		b.focused = bool(msg)
	}
	return b, nil
}

func (b *ToolCallBlock) View(width int) string {
	indicator := "▶"
	if !b.collapsed {
		indicator = "▼"
	}
	style := b.styles.ToolCall
	if b.focused {
		style = b.styles.Focused
	}
	title := indicator + " " + b.command
	header := style.Render(title) + " " + b.styles.Muted.Render("#"+b.id)
	if b.collapsed {
		room := width - 1 - uniseg.StringWidth(title) - uniseg.StringWidth(b.id) - 4
		if b.params != nil && room > 0 {
			header += "  " + b.styles.Muted.Render(truncate(compactJSON(b.params), room))
		}
		return b.styles.ToolBg.Width(width).Render(header)
	}
	content := header
	if b.params != nil {
		content += "\n" + b.styles.Muted.Render(prettyJSON(b.params))
	}
	return b.styles.ToolBg.Width(width).Render(content)
}

// focusMsg marks a block as the focus target.
type focusMsg bool
