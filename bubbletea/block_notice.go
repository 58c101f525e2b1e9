package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rivo/uniseg"
)

var _ MessageBlock = (*NoticeBlock)(nil)

// NoticeBlock renders a centered rule with a label, used for new chats.
type NoticeBlock struct {
	label  string
	styles Styles
}

// NewNoticeBlock creates a NoticeBlock.
func NewNoticeBlock(label string, styles Styles) *NoticeBlock {
	return &NoticeBlock{label: label, styles: styles}
}

func (b *NoticeBlock) Update(tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *NoticeBlock) View(width int) string {
	label := " " + b.label + " "
	side := (width - uniseg.StringWidth(label)) / 2
	if side < 2 {
		return b.styles.Muted.Render(strings.TrimSpace(label))
	}
	rule := strings.Repeat("─", side)
	return b.styles.Muted.Render(rule + label + rule)
}
