package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*UserPromptBlock)(nil)

// UserPromptBlock renders a user prompt with a "> " prefix.
type UserPromptBlock struct {
	text   string
	styles Styles
}

// NewUserPromptBlock creates a UserPromptBlock.
func NewUserPromptBlock(text string, styles Styles) *UserPromptBlock {
	return &UserPromptBlock{text: text, styles: styles}
}

func (b *UserPromptBlock) Update(tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *UserPromptBlock) View(width int) string {
	content := b.styles.Plugin.Render("> ") + b.text
	return lipgloss.NewStyle().Width(width).Render(content)
}
