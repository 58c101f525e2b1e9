package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/relay"
)

var _ MessageBlock = (*ErrorBlock)(nil)

// ErrorBlock renders an error frame sent over a channel.
type ErrorBlock struct {
	from   relay.Role
	text   string
	styles Styles
}

// NewErrorBlock creates an ErrorBlock.
func NewErrorBlock(from relay.Role, text string, styles Styles) *ErrorBlock {
	return &ErrorBlock{from: from, text: text, styles: styles}
}

func (b *ErrorBlock) Update(tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *ErrorBlock) View(width int) string {
	prefix := "Error: "
	if b.from != "" {
		prefix = "Error from " + string(b.from) + ": "
	}
	content := b.styles.Error.Render(prefix + b.text)
	return lipgloss.NewStyle().Width(width).Render(content)
}
