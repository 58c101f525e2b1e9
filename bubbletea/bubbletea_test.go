package bubbletea_test

import (
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
	bt "github.com/fwojciec/relay/bubbletea"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// feed is a FetchFunc that hands out queued batches, one per call.
type feed struct {
	mu      sync.Mutex
	batches [][]relay.TranscriptRecord
	err     error
}

func (f *feed) push(records ...relay.TranscriptRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
}

func (f *feed) fetch() ([]relay.TranscriptRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next, nil
}

func noRecords() ([]relay.TranscriptRecord, error) { return nil, nil }

func initModel(t *testing.T, fetch bt.FetchFunc, opts ...bt.Option) bt.Model {
	t.Helper()
	return initModelWithSize(t, fetch, 80, 24, opts...)
}

func initModelWithSize(t *testing.T, fetch bt.FetchFunc, width, height int, opts ...bt.Option) bt.Model {
	t.Helper()
	m := bt.New(fetch, relay.DefaultTheme(), opts...)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// deliver sends records to m as if fetched.
func deliver(t *testing.T, m bt.Model, records ...relay.TranscriptRecord) bt.Model {
	t.Helper()
	updated, _ := m.Update(bt.RecordsMsg{Records: records})
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

func press(t *testing.T, m bt.Model, key tea.KeyMsg) bt.Model {
	t.Helper()
	updated, _ := m.Update(key)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func prompt(channel, text string) relay.TranscriptRecord {
	return relay.TranscriptRecord{Timestamp: t0, Channel: channel, From: relay.RolePlugin, Type: relay.TypeUserPrompt, Text: text}
}

func response(channel, text string, final bool) relay.TranscriptRecord {
	return relay.TranscriptRecord{
		Timestamp: t0, Channel: channel, From: relay.RoleAgent, Type: relay.TypeAgentResponse, Text: text,
		Meta: map[string]any{"is_final": final},
	}
}

func toolCall(channel, id, command string, params map[string]any) relay.TranscriptRecord {
	return relay.TranscriptRecord{
		Timestamp: t0, Channel: channel, From: relay.RolePlugin, Type: relay.TypeToolCall,
		Meta: map[string]any{"id": id, "command": command, "params": params},
	}
}

func toolResponse(channel string, meta map[string]any) relay.TranscriptRecord {
	return relay.TranscriptRecord{Timestamp: t0, Channel: channel, From: relay.RoleAgent, Type: relay.TypeToolResponse, Meta: meta}
}
