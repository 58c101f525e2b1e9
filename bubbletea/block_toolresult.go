package bubbletea

import (
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
	"github.com/rivo/uniseg"
)

var _ MessageBlock = (*ToolResultBlock)(nil)

// ToolResult is the content of a tool_response transcript record.
type ToolResult struct {
	ID       string
	Tool     string
	Result   any
	Err      *relay.StructuredError
	Duration time.Duration
	// Timed is false when the response matched no pending call.
	Timed bool
}

// ToolResultBlock renders a tool result with a collapsible toggle.
// Success results start collapsed; error results are always expanded.
type ToolResultBlock struct {
	res       ToolResult
	collapsed bool
	focused   bool
	styles    Styles
}

// NewToolResultBlock creates a ToolResultBlock.
func NewToolResultBlock(res ToolResult, styles Styles) *ToolResultBlock {
	return &ToolResultBlock{res: res, collapsed: res.Err == nil, styles: styles}
}

// IsError reports whether the tool call failed.
func (b *ToolResultBlock) IsError() bool { return b.res.Err != nil }

// Collapsed reports whether the result body is hidden.
func (b *ToolResultBlock) Collapsed() bool { return b.collapsed }

func (b *ToolResultBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	switch msg := msg.(type) {
	case ToggleMsg:
		b.collapsed = !b.collapsed && !b.IsError()
	case SetCollapsedMsg:
		b.collapsed = msg.Collapsed && !b.IsError()
	case focusMsg:
		b.focused = bool(msg)
	}
	return b, nil
}

func (b *ToolResultBlock) View(width int) string {
	if b.collapsed {
		return b.viewCollapsed(width)
	}
	return b.viewExpanded(width)
}

func (b *ToolResultBlock) header(indicator string) (string, int) {
	icon, iconStyle := "✓", b.styles.Success
	if b.IsError() {
		icon, iconStyle = "✗", b.styles.Error
	}
	nameStyle := b.styles.ToolCall
	if b.focused {
		nameStyle = b.styles.Focused
	}
	title := indicator + " " + b.res.Tool
	h := nameStyle.Render(title) + " " + iconStyle.Render(icon)
	used := uniseg.StringWidth(title) + 2
	if b.res.Timed {
		d := formatDuration(b.res.Duration)
		h += " " + b.styles.Muted.Render(d)
		used += 1 + len(d)
	}
	if b.IsError() {
		h += " " + b.styles.Error.Render(b.res.Err.Code)
		used += 1 + uniseg.StringWidth(b.res.Err.Code)
	}
	return h, used
}

func (b *ToolResultBlock) viewCollapsed(width int) string {
	header, used := b.header("▶")
	if b.res.Result != nil {
		room := width - 1 - used - 2
		if preview := truncate(firstLine(compactJSON(b.res.Result)), room); preview != "" {
			header += "  " + preview
		}
	}
	return b.styles.ToolBg.Width(width).Render(header)
}

func (b *ToolResultBlock) viewExpanded(width int) string {
	header, _ := b.header("▼")
	lines := []string{header}
	if b.IsError() {
		lines = append(lines, b.styles.Error.Render(b.res.Err.Message))
		if len(b.res.Err.Details) > 0 {
			lines = append(lines, b.styles.Muted.Render(detailLines(b.res.Err.Details)))
		}
	}
	if b.res.Result != nil {
		lines = append(lines, prettyJSON(b.res.Result))
	}
	bg := b.styles.ToolBg
	if b.IsError() {
		bg = b.styles.ErrorBg
	}
	return bg.Width(width).Render(strings.Join(lines, "\n"))
}

// detailLines renders error details as sorted key: value lines.
func detailLines(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + ": " + compactJSON(details[k])
	}
	return strings.Join(lines, "\n")
}
