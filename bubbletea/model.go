package bubbletea

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/goldmark"
)

var _ tea.Model = Model{}

// DefaultInterval is the default delay between transcript polls.
const DefaultInterval = 500 * time.Millisecond

// Model is the Bubble Tea model of the transcript viewer.
type Model struct {
	// Viewport is the scrollable transcript area. Exported for test access.
	Viewport viewport.Model

	fetch    FetchFunc
	interval time.Duration
	channel  string
	styles   Styles
	renderer *goldmark.Renderer

	blocks      []MessageBlock
	blockFocus  int                       // index of focused collapsible block (-1 = none)
	calls       map[string]*ToolCallBlock // keyed by channel and call id
	records     int
	follow      bool
	allExpanded bool
	err         error
	ready       bool
}

// Option configures a Model.
type Option func(*Model)

// WithChannel shows only records of one channel.
func WithChannel(channel string) Option {
	return func(m *Model) { m.channel = channel }
}

// WithInterval sets the delay between polls.
func WithInterval(d time.Duration) Option {
	return func(m *Model) { m.interval = d }
}

// New creates a viewer that polls fetch for new records.
func New(fetch FetchFunc, theme relay.Theme, opts ...Option) Model {
	m := Model{
		fetch:      fetch,
		interval:   DefaultInterval,
		styles:     NewStyles(theme),
		renderer:   goldmark.NewRenderer(theme),
		blockFocus: -1,
		calls:      make(map[string]*ToolCallBlock),
		follow:     true,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Records returns the number of records shown.
func (m Model) Records() int { return m.records }

// Err returns the last fetch error, if any.
func (m Model) Err() error { return m.err }

// Following reports whether the view sticks to the newest record.
func (m Model) Following() bool { return m.follow }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return fetchRecords(m.fetch)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case RecordsMsg:
		m.err = msg.Err
		if len(msg.Records) > 0 {
			m = m.appendRecords(msg.Records)
			m = m.refresh()
		}
		return m, tick(m.interval)

	case tickMsg:
		return m, fetchRecords(m.fetch)
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	if m.ready {
		m.follow = m.Viewport.AtBottom()
	}
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading transcript..."
	}
	return m.Viewport.View() + "\n" + m.statusLine()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	const statusHeight = 1
	vpHeight := max(msg.Height-statusHeight, 1)
	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	return m.refresh()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "tab":
		if m.blockFocus >= 0 {
			m.blocks[m.blockFocus], _ = m.blocks[m.blockFocus].Update(ToggleMsg{})
			m = m.refresh()
		}
		return m, nil

	case "shift+tab":
		m = m.cycleFocusPrev().refresh()
		return m, nil

	case "e":
		m.allExpanded = !m.allExpanded
		for i, b := range m.blocks {
			m.blocks[i], _ = b.Update(SetCollapsedMsg{Collapsed: !m.allExpanded})
		}
		m = m.refresh()
		return m, nil

	case "f", "G", "end":
		m.follow = true
		m.Viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	if m.ready {
		m.follow = m.Viewport.AtBottom()
	}
	return m, cmd
}

// appendRecords converts records of the watched channel into blocks.
func (m Model) appendRecords(records []relay.TranscriptRecord) Model {
	for _, rec := range records {
		if m.channel != "" && rec.Channel != m.channel {
			continue
		}
		if b := m.blockFor(rec); b != nil {
			m.blocks = append(m.blocks, b)
			m.records++
		}
	}
	return m.updateBlockFocus()
}

func (m Model) blockFor(rec relay.TranscriptRecord) MessageBlock {
	switch rec.Type {
	case relay.TypeUserPrompt:
		return NewUserPromptBlock(rec.Text, m.styles)

	case relay.TypeAgentResponse:
		final, _ := rec.Meta["is_final"].(bool)
		return NewAgentResponseBlock(rec.Text, final, m.renderer, m.styles)

	case relay.TypeToolCall:
		id, _ := rec.Meta["id"].(string)
		command, _ := rec.Meta["command"].(string)
		b := NewToolCallBlock(id, command, rec.Meta["params"], m.styles)
		if m.allExpanded {
			b.Update(SetCollapsedMsg{Collapsed: false})
		}
		m.calls[callKey(rec.Channel, id)] = b
		return b

	case relay.TypeToolResponse:
		b := NewToolResultBlock(m.toolResult(rec), m.styles)
		if m.allExpanded {
			b.Update(SetCollapsedMsg{Collapsed: false})
		}
		return b

	case relay.TypeError:
		return NewErrorBlock(rec.From, rec.Text, m.styles)

	case relay.TypeNewChat:
		label := "new chat"
		if m.channel == "" && rec.Channel != "" {
			label += " · " + rec.Channel
		}
		return NewNoticeBlock(label, m.styles)
	}
	return nil
}

func (m Model) toolResult(rec relay.TranscriptRecord) ToolResult {
	id, _ := rec.Meta["id"].(string)
	res := ToolResult{ID: id, Result: rec.Meta["result"]}

	res.Tool, _ = rec.Meta["tool"].(string)
	if res.Tool == "" {
		if call, ok := m.calls[callKey(rec.Channel, id)]; ok {
			res.Tool = call.Command()
		} else {
			res.Tool = relay.UnknownTool
		}
	}
	if ms, ok := number(rec.Meta["duration_ms"]); ok {
		res.Duration = time.Duration(ms) * time.Millisecond
		res.Timed = true
	}

	switch {
	case rec.Meta["error_structured"] != nil:
		se := relay.NormalizeError(relay.RawErrorOf(rec.Meta["error_structured"]))
		res.Err = &se
	case rec.Meta["error"] != nil:
		se := relay.NormalizeError(relay.RawErrorOf(rec.Meta["error"]))
		res.Err = &se
	}
	return res
}

// number reads a JSON number that may have been decoded as float64 or
// carried in memory as an integer.
func number(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func callKey(channel, id string) string {
	return channel + "\x00" + id
}

// refresh re-renders the blocks into the viewport.
func (m Model) refresh() Model {
	if !m.ready {
		return m
	}
	m.Viewport.SetContent(m.renderContent())
	if m.follow {
		m.Viewport.GotoBottom()
	}
	return m
}

func (m Model) renderContent() string {
	if len(m.blocks) == 0 {
		return m.styles.Muted.Render("Waiting for transcript records...")
	}
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString(blockSeparator(m.blocks[i-1], block))
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

// updateBlockFocus focuses the last collapsible block.
func (m Model) updateBlockFocus() Model {
	for i := len(m.blocks) - 1; i >= 0; i-- {
		if collapsible(m.blocks[i]) {
			return m.setFocus(i)
		}
	}
	return m.setFocus(-1)
}

// cycleFocusPrev moves focus to the previous collapsible block, wrapping
// around.
func (m Model) cycleFocusPrev() Model {
	n := len(m.blocks)
	if n == 0 {
		return m
	}
	start := m.blockFocus - 1
	if start < 0 {
		start = n - 1
	}
	for i := range n {
		idx := (start - i + n) % n
		if collapsible(m.blocks[idx]) {
			return m.setFocus(idx)
		}
	}
	return m.setFocus(-1)
}

func (m Model) setFocus(idx int) Model {
	if m.blockFocus >= 0 && m.blockFocus < len(m.blocks) {
		m.blocks[m.blockFocus], _ = m.blocks[m.blockFocus].Update(focusMsg(false))
	}
	m.blockFocus = idx
	if idx >= 0 {
		m.blocks[idx], _ = m.blocks[idx].Update(focusMsg(true))
	}
	return m
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.styles.Error.Render(truncate(fmt.Sprintf("Error: %v", m.err), m.Viewport.Width))
	}
	scope := "all channels"
	if m.channel != "" {
		scope = "channel " + m.channel
	}
	left := fmt.Sprintf("%s · %d records", scope, m.records)
	if !m.follow {
		left += " · paused"
	}
	help := "tab toggle · e expand all · f follow · q quit"
	return m.styles.StatusLine.Render(spread(left, help, m.Viewport.Width))
}

func fetchRecords(fetch FetchFunc) tea.Cmd {
	return func() tea.Msg {
		records, err := fetch()
		return RecordsMsg{Records: records, Err: err}
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return tickMsg{} })
}
