// Package goldmark renders agent responses written in markdown to
// ANSI-styled terminal output. Parsing is done by goldmark with the GFM
// table, strikethrough, task list and linkify extensions; styling by
// lipgloss.
package goldmark

import (
	"github.com/fwojciec/relay"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// DefaultWidth is used when Render is given a non-positive width.
const DefaultWidth = 80

// Renderer renders markdown with a fixed theme. It is safe for concurrent
// use.
type Renderer struct {
	parser parser.Parser
	styles styles
}

// NewRenderer returns a Renderer using theme colors.
func NewRenderer(theme relay.Theme) *Renderer {
	md := goldmark.New(goldmark.WithExtensions(
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
		extension.Linkify,
	))
	return &Renderer{parser: md.Parser(), styles: newStyles(theme)}
}

// Render parses source and returns styled output. Paragraphs, list items
// and quotes are word-wrapped to width; code blocks keep their lines.
func (r *Renderer) Render(source string, width int) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = DefaultWidth
	}
	return r.render([]byte(source), width)
}

// Render is a convenience wrapper around NewRenderer(theme).Render.
func Render(source string, width int, theme relay.Theme) string {
	return NewRenderer(theme).Render(source, width)
}
