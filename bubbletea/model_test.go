package bubbletea_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/fwojciec/relay"
	bt "github.com/fwojciec/relay/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	m := bt.New(noRecords, relay.DefaultTheme())
	assert.Equal(t, 0, m.Records())
	assert.NoError(t, m.Err())
	assert.True(t, m.Following())
	assert.Equal(t, "Loading transcript...", m.View())
}

func TestModel_Update(t *testing.T) {
	t.Parallel()

	t.Run("window size sizes viewport below status line", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, noRecords)
		assert.Equal(t, 80, m.Viewport.Width)
		assert.Equal(t, 23, m.Viewport.Height)

		m2, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
		model := m2.(bt.Model)
		assert.Equal(t, 120, model.Viewport.Width)
		assert.Equal(t, 39, model.Viewport.Height)
	})

	t.Run("empty transcript shows placeholder", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, noRecords)
		assert.Contains(t, bt.RenderContent(m), "Waiting for transcript records")
		assert.Contains(t, m.View(), "all channels · 0 records")
	})

	t.Run("records become blocks", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, noRecords)
		m = deliver(t, m,
			relay.TranscriptRecord{Timestamp: t0, Channel: "c1", From: relay.RolePlugin, Type: relay.TypeNewChat},
			prompt("c1", "make a frame"),
			toolCall("c1", "1", "create_frame", map[string]any{"width": 100}),
			toolResponse("c1", map[string]any{"id": "1", "result": map[string]any{"nodeId": "10:1"}, "tool": "create_frame", "duration_ms": float64(25)}),
			response("c1", "Done.", true),
			relay.TranscriptRecord{Timestamp: t0, Channel: "c1", From: relay.RoleAgent, Type: relay.TypeError, Text: "agent crashed"},
		)
		assert.Equal(t, 6, m.Records())
		content := bt.RenderContent(m)
		for _, want := range []string{"new chat · c1", "> make a frame", "▶ create_frame", "✓ 25ms", "Done.", "Error from agent: agent crashed"} {
			assert.Contains(t, content, want)
		}
		assert.Contains(t, m.View(), "all channels · 6 records")
	})

	t.Run("unlogged record types are skipped", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, noRecords)
		m = deliver(t, m, relay.TranscriptRecord{Channel: "c1", Type: relay.TypeProgressUpdate})
		assert.Equal(t, 0, m.Records())
	})

	t.Run("channel filter", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, noRecords, bt.WithChannel("c2"))
		m = deliver(t, m, prompt("c1", "first"), prompt("c2", "second"))
		assert.Equal(t, 1, m.Records())
		content := bt.RenderContent(m)
		assert.Contains(t, content, "second")
		assert.NotContains(t, content, "first")
		assert.Contains(t, m.View(), "channel c2 · 1 records")
	})

	t.Run("response without tool name uses the correlated call", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, noRecords)
		m = deliver(t, m,
			toolCall("c1", "9", "move_node", nil),
			toolResponse("c1", map[string]any{"id": "9", "result": "ok"}),
			toolResponse("c1", map[string]any{"id": "404", "result": "ok"}),
		)
		blocks := bt.Blocks(m)
		require.Len(t, blocks, 3)
		assert.Contains(t, blocks[1].View(80), "move_node ✓")
		assert.Contains(t, blocks[2].View(80), "unknown ✓")
	})

	t.Run("tool error is normalized", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, noRecords)
		m = deliver(t, m,
			toolResponse("c1", map[string]any{"id": "1", "error": "plain failure"}),
			toolResponse("c1", map[string]any{"id": "2", "error": "x", "error_structured": map[string]any{"code": "locked_node", "message": "locked"}}),
		)
		blocks := bt.Blocks(m)
		require.Len(t, blocks, 2)
		assert.Contains(t, blocks[0].View(80), relay.CodeUnknownPluginError)
		assert.Contains(t, blocks[0].View(80), "plain failure")
		assert.Contains(t, blocks[1].View(80), "locked_node")
	})

	t.Run("fetch error shows in status line and clears on success", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, noRecords)
		m2, _ := m.Update(bt.RecordsMsg{Err: errors.New("permission denied")})
		m = m2.(bt.Model)
		assert.Error(t, m.Err())
		assert.Contains(t, m.View(), "Error: permission denied")

		m = deliver(t, m, prompt("c1", "hi"))
		assert.NoError(t, m.Err())
	})

	t.Run("records schedule the next poll", func(t *testing.T) {
		t.Parallel()
		m := initModel(t, noRecords)
		_, cmd := m.Update(bt.RecordsMsg{})
		assert.NotNil(t, cmd)
	})
}

func TestModel_Focus(t *testing.T) {
	t.Parallel()

	records := []relay.TranscriptRecord{
		toolCall("c1", "1", "create_frame", map[string]any{"width": 100}),
		prompt("c1", "between"),
		toolCall("c1", "2", "move_node", map[string]any{"x": 5}),
	}

	t.Run("focus follows last collapsible block", func(t *testing.T) {
		t.Parallel()
		m := deliver(t, initModel(t, noRecords), records...)
		assert.Equal(t, 2, bt.BlockFocus(m))
	})

	t.Run("tab toggles focused block", func(t *testing.T) {
		t.Parallel()
		m := deliver(t, initModel(t, noRecords), records...)
		m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
		assert.Contains(t, bt.RenderContent(m), `"x": 5`)
		assert.NotContains(t, bt.RenderContent(m), `"width": 100`)
	})

	t.Run("shift+tab cycles backwards skipping plain blocks", func(t *testing.T) {
		t.Parallel()
		m := deliver(t, initModel(t, noRecords), records...)
		m = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
		assert.Equal(t, 0, bt.BlockFocus(m))
		m = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
		assert.Equal(t, 2, bt.BlockFocus(m))
	})

	t.Run("no collapsible blocks", func(t *testing.T) {
		t.Parallel()
		m := deliver(t, initModel(t, noRecords), prompt("c1", "hi"))
		assert.Equal(t, -1, bt.BlockFocus(m))
		m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
		m = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
		assert.Equal(t, -1, bt.BlockFocus(m))
	})

	t.Run("expand all applies to later blocks", func(t *testing.T) {
		t.Parallel()
		m := deliver(t, initModel(t, noRecords), records...)
		m = press(t, m, runes("e"))
		assert.True(t, bt.AllExpanded(m))
		content := bt.RenderContent(m)
		assert.Contains(t, content, `"width": 100`)
		assert.Contains(t, content, `"x": 5`)

		m = deliver(t, m, toolCall("c1", "3", "resize_node", map[string]any{"height": 7}))
		assert.Contains(t, bt.RenderContent(m), `"height": 7`)

		m = press(t, m, runes("e"))
		assert.False(t, bt.AllExpanded(m))
		assert.NotContains(t, bt.RenderContent(m), `"height": 7`)
	})
}

func TestModel_Follow(t *testing.T) {
	t.Parallel()
	m := initModelWithSize(t, noRecords, 40, 5)
	for i := range 20 {
		m = deliver(t, m, prompt("c1", strings.Repeat("x", i+1)))
	}
	assert.True(t, m.Following())
	assert.True(t, m.Viewport.AtBottom())

	m = press(t, m, tea.KeyMsg{Type: tea.KeyPgUp})
	assert.False(t, m.Following())
	assert.Contains(t, m.View(), "paused")

	m = deliver(t, m, prompt("c1", "newest"))
	assert.False(t, m.Viewport.AtBottom(), "paused view does not jump")

	m = press(t, m, runes("f"))
	assert.True(t, m.Following())
	assert.True(t, m.Viewport.AtBottom())
}

func TestModel_Program(t *testing.T) {
	t.Parallel()

	t.Run("polls until records arrive", func(t *testing.T) {
		t.Parallel()
		f := &feed{}
		m := bt.New(f.fetch, relay.DefaultTheme(), bt.WithInterval(10*time.Millisecond))
		tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

		teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
			return bytes.Contains(out, []byte("Waiting for transcript records"))
		}, teatest.WithDuration(5*time.Second))

		f.push(prompt("c1", "hello relay"), response("c1", "Hi **there**", true))

		teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
			return bytes.Contains(out, []byte("hello relay")) &&
				bytes.Contains(out, []byte("Hi there")) &&
				bytes.Contains(out, []byte("2 records"))
		}, teatest.WithDuration(5*time.Second))

		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		fm := tm.FinalModel(t, teatest.WithFinalTimeout(5*time.Second))
		final, ok := fm.(bt.Model)
		require.True(t, ok)
		assert.Equal(t, 2, final.Records())
	})

	t.Run("ctrl+c quits", func(t *testing.T) {
		t.Parallel()
		m := bt.New(noRecords, relay.DefaultTheme(), bt.WithInterval(10*time.Millisecond))
		tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))
		tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
		tm.WaitFinished(t, teatest.WithFinalTimeout(5*time.Second))
	})
}
