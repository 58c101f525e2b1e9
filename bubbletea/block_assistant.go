package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay/goldmark"
)

var _ MessageBlock = (*AgentResponseBlock)(nil)

// AgentResponseBlock renders an agent response as markdown. Rendered
// output is cached per width. Non-final responses carry a muted marker.
type AgentResponseBlock struct {
	text     string
	final    bool
	renderer *goldmark.Renderer
	styles   Styles

	byWidth map[int]string
}

// NewAgentResponseBlock creates an AgentResponseBlock.
func NewAgentResponseBlock(text string, final bool, renderer *goldmark.Renderer, styles Styles) *AgentResponseBlock {
	return &AgentResponseBlock{
		text:     text,
		final:    final,
		renderer: renderer,
		styles:   styles,
		byWidth:  make(map[int]string),
	}
}

// Final reports whether the response closed its turn.
func (b *AgentResponseBlock) Final() bool { return b.final }

func (b *AgentResponseBlock) Update(tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *AgentResponseBlock) View(width int) string {
	if cached, ok := b.byWidth[width]; ok {
		return cached
	}
	source := b.text
	if hasUnclosedFence(source) {
		source += "\n```"
	}
	rendered := b.renderer.Render(source, width)
	if !b.final {
		rendered = strings.TrimRight(rendered, "\n") + "\n" + b.styles.Muted.Render("…")
	}
	b.byWidth[width] = rendered
	return rendered
}

// hasUnclosedFence reports whether s has an odd number of "```" markers.
func hasUnclosedFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}
