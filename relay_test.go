package relay_test

import (
	"errors"
	"testing"
	"time"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	relay      *relay.Relay
	clock      *clock
	transcript *transcript
	usage      *usageLog
}

func newHarness(opts ...relay.Option) *harness {
	h := &harness{clock: newClock(), transcript: newTranscript(), usage: newUsageLog()}
	opts = append([]relay.Option{
		relay.WithClock(h.clock.Now),
		relay.WithTranscriptLog(h.transcript),
		relay.WithUsageLog(h.usage),
	}, opts...)
	h.relay = relay.New(opts...)
	return h
}

func (h *harness) send(t *testing.T, c relay.Conn, frame string) error {
	t.Helper()
	return h.relay.HandleFrame(c, []byte(frame))
}

// pair joins an agent and a plugin to channel c1.
func (h *harness) pair(t *testing.T) (plugin, agent *recorder) {
	t.Helper()
	plugin, agent = newRecorder("plugin-1"), newRecorder("agent-1")
	require.NoError(t, h.send(t, agent, `{"type":"join","role":"agent","channel":"c1"}`))
	require.NoError(t, h.send(t, plugin, `{"type":"join","role":"plugin","channel":"c1"}`))
	return plugin, agent
}

func TestRelay_Join(t *testing.T) {
	t.Parallel()

	t.Run("acknowledges with system result", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		c := newRecorder("a")
		require.NoError(t, h.send(t, c, `{"type":"join","role":"agent","channel":"c1","id":"j1"}`))
		assert.Equal(t, map[string]any{
			"type":    "system",
			"channel": "c1",
			"message": map[string]any{"result": true, "id": "j1"},
		}, c.last(t))
		assert.Equal(t, relay.ChannelHalfJoined, h.relay.ChannelState("c1"))
	})

	t.Run("second plugin is rejected and first keeps working", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		plugin, agent := h.pair(t)
		intruder := newRecorder("plugin-2")

		err := h.send(t, intruder, `{"type":"join","role":"plugin","channel":"c1"}`)
		assert.ErrorIs(t, err, relay.ErrRoleConflict)
		assert.Equal(t, map[string]any{
			"type":    "error",
			"message": "A plugin is already connected to channel c1",
			"channel": "c1",
		}, intruder.last(t))
		assert.Equal(t, 1, agent.count(), "agent saw only its own join ack")
		assert.Equal(t, 1, plugin.count())

		prompt := `{"type":"user_prompt","prompt":"draw a box"}`
		require.NoError(t, h.send(t, plugin, prompt))
		assert.Equal(t, prompt, string(agent.lastRaw(t)))
		require.NoError(t, h.send(t, agent, `{"type":"agent_response","prompt":"ok"}`))
		assert.Equal(t, "ok", plugin.last(t)["prompt"])
	})

	t.Run("joining a second channel is rejected", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		c := newRecorder("a")
		require.NoError(t, h.send(t, c, `{"type":"join","role":"agent","channel":"c1"}`))
		err := h.send(t, c, `{"type":"join","role":"agent","channel":"c2"}`)
		assert.ErrorIs(t, err, relay.ErrAlreadyJoined)
		assert.Equal(t, "Already joined channel c1 as agent", c.last(t)["message"])
		assert.Equal(t, relay.ChannelEmpty, h.relay.ChannelState("c2"))
	})

	t.Run("role is normalized before validation", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		c := newRecorder("p")
		require.NoError(t, h.send(t, c, `{"type":"join","role":"PLUGIN","channel":"c1"}`))
		assert.Equal(t, []relay.ChannelInfo{{Key: "c1", Roles: []relay.Role{relay.RolePlugin}, State: relay.ChannelHalfJoined}}, h.relay.Channels())
	})
}

func TestRelay_ToolCallRoundTrip(t *testing.T) {
	t.Parallel()
	h := newHarness()
	plugin, agent := h.pair(t)

	call := `{"type":"tool_call","id":"1","command":"create_frame","params":{"width":100,"height":100}}`
	require.NoError(t, h.send(t, plugin, call))
	assert.Equal(t, call, string(agent.lastRaw(t)))
	assert.Equal(t, 1, h.relay.PendingToolCalls())

	h.clock.Advance(25 * time.Millisecond)
	resp := `{"type":"tool_response","id":"1","result":{"nodeId":"10:1"}}`
	require.NoError(t, h.send(t, agent, resp))
	assert.Equal(t, resp, string(plugin.lastRaw(t)))
	assert.Equal(t, 0, h.relay.PendingToolCalls())

	records := h.transcript.all()
	require.Len(t, records, 2)
	assert.Equal(t, relay.TypeToolCall, records[0].Type)
	assert.Equal(t, relay.RolePlugin, records[0].From)
	assert.Equal(t, "1", records[0].Meta["id"])
	assert.Equal(t, "create_frame", records[0].Meta["command"])

	assert.Equal(t, relay.TypeToolResponse, records[1].Type)
	assert.Equal(t, relay.RoleAgent, records[1].From)
	assert.Equal(t, "1", records[1].Meta["id"])
	assert.Equal(t, "create_frame", records[1].Meta["tool"])
	assert.Equal(t, int64(25), records[1].Meta["duration_ms"])
	assert.NotContains(t, records[1].Meta, "error_structured")
}

func TestRelay_ParamRewriteOnlyForRegisteredCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(relay.WithSchemas(registered("move_node")))
	plugin, agent := h.pair(t)

	custom := `{"type":"tool_call","id":"1","command":"custom_tool","params":{"nodeId":"1:2"}}`
	require.NoError(t, h.send(t, plugin, custom))
	assert.Equal(t, custom, string(agent.lastRaw(t)))

	require.NoError(t, h.send(t, plugin, `{"type":"tool_call","id":"2","command":"move_node","params":{"nodeId":"1:2"}}`))
	assert.Equal(t, map[string]any{"node_id": "1:2"}, agent.last(t)["params"])
}

func TestRelay_ToolResponseWithoutCall(t *testing.T) {
	t.Parallel()
	h := newHarness()
	plugin, agent := h.pair(t)

	require.NoError(t, h.send(t, agent, `{"type":"tool_response","id":"ghost","result":true}`))
	assert.Equal(t, "ghost", plugin.last(t)["id"])

	records := h.transcript.all()
	require.Len(t, records, 1)
	assert.NotContains(t, records[0].Meta, "tool")
	assert.NotContains(t, records[0].Meta, "duration_ms")
}

func TestRelay_ToolError(t *testing.T) {
	t.Parallel()
	h := newHarness()
	plugin, agent := h.pair(t)

	require.NoError(t, h.send(t, plugin, `{"type":"tool_call","id":"2","command":"move_node","params":{"node_id":"1:2"}}`))
	require.NoError(t, h.send(t, agent, `{"type":"tool_response","id":"2","error":"{\"code\":\"locked_node\",\"message\":\"node is locked\"}"}`))

	want := map[string]any{"code": "locked_node", "message": "node is locked"}
	forwarded := plugin.last(t)
	assert.Equal(t, want, forwarded["error_structured"])
	assert.Equal(t, `{"code":"locked_node","message":"node is locked"}`, forwarded["error"])

	records := h.transcript.all()
	require.Len(t, records, 2)
	assert.Equal(t, want, records[1].Meta["error_structured"])
	assert.Equal(t, `{"code":"locked_node","message":"node is locked"}`, records[1].Meta["error"])
	assert.Equal(t, "move_node", records[1].Meta["tool"])
}

func TestRelay_ToolErrorBesideNullError(t *testing.T) {
	t.Parallel()
	h := newHarness()
	plugin, agent := h.pair(t)

	require.NoError(t, h.send(t, agent, `{"type":"tool_response","id":"9","error":null,"error_structured":{"message":"boom"}}`))

	forwarded := plugin.last(t)
	envelope, ok := forwarded["error_structured"].(map[string]any)
	require.True(t, ok, "forwarded: %v", forwarded)
	assert.Equal(t, relay.CodeUnknownPluginError, envelope["code"])
	assert.Equal(t, "boom", envelope["message"])

	records := h.transcript.all()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Meta, "error_structured")
}

func TestRelay_InvalidFrames(t *testing.T) {
	t.Parallel()
	frames := map[string]string{
		"malformed JSON":           `{"type":`,
		"unknown type":             `{"type":"teleport"}`,
		"tool_call without params": `{"type":"tool_call","id":"1","command":"x"}`,
		"failing schema":           `{"type":"tool_call","id":"1","command":"create_frame","params":{"width":"wide"}}`,
	}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			schemas := &mock.SchemaRegistry{LookupFn: func(command string) (relay.Schema, bool) {
				return &mock.Schema{ValidateFn: func(params any) error {
					p, _ := params.(map[string]any)
					if _, ok := p["width"].(string); ok {
						return relay.ErrValidation
					}
					return nil
				}}, command == "create_frame"
			}}
			h := newHarness(relay.WithSchemas(schemas))
			plugin, agent := h.pair(t)

			err := h.send(t, plugin, frame)
			assert.ErrorIs(t, err, relay.ErrValidation)
			assert.Equal(t, map[string]any{
				"type":    "error",
				"message": relay.MsgInvalidFormat,
				"channel": "c1",
			}, plugin.last(t))
			assert.Equal(t, 1, agent.count(), "frame must not be forwarded")
			assert.Empty(t, h.transcript.all())
			assert.Equal(t, 0, h.relay.PendingToolCalls())
		})
	}
}

func TestRelay_Unjoined(t *testing.T) {
	t.Parallel()
	h := newHarness()
	c := newRecorder("stranger")
	err := h.send(t, c, `{"type":"user_prompt","prompt":"hi"}`)
	assert.ErrorIs(t, err, relay.ErrNotJoined)
	assert.Equal(t, map[string]any{"type": "error", "message": relay.MsgNotJoined}, c.last(t))
}

func TestRelay_NoCounterpart(t *testing.T) {
	t.Parallel()
	h := newHarness()
	plugin := newRecorder("p")
	require.NoError(t, h.send(t, plugin, `{"type":"join","role":"plugin","channel":"c1"}`))

	require.NoError(t, h.send(t, plugin, `{"type":"tool_call","id":"1","command":"x","params":{}}`))
	assert.Equal(t, 1, plugin.count(), "only the join ack")
	assert.Equal(t, 1, h.relay.PendingToolCalls())
	assert.Len(t, h.transcript.all(), 1)
}

func TestRelay_Ping(t *testing.T) {
	t.Parallel()
	h := newHarness()
	c := newRecorder("x")
	require.NoError(t, h.send(t, c, `{"type":"ping","id":"k1"}`))
	assert.Equal(t, map[string]any{"type": "pong", "id": "k1"}, c.last(t))

	require.NoError(t, h.send(t, c, `{"type":"pong"}`))
	assert.Equal(t, 1, c.count())
}

func TestRelay_Disconnect(t *testing.T) {
	t.Parallel()
	h := newHarness()
	plugin, agent := h.pair(t)

	h.relay.Disconnect(plugin)
	assert.Equal(t, map[string]any{
		"type":    "system",
		"message": "The plugin has disconnected",
		"channel": "c1",
	}, agent.last(t))
	assert.Equal(t, relay.ChannelHalfJoined, h.relay.ChannelState("c1"))

	h.relay.Disconnect(agent)
	assert.Empty(t, h.relay.Channels())
	h.relay.Disconnect(agent)

	seen := agent.count()
	fresh := newRecorder("plugin-2")
	require.NoError(t, h.send(t, fresh, `{"type":"join","role":"plugin","channel":"c1"}`))
	assert.Equal(t, relay.ChannelHalfJoined, h.relay.ChannelState("c1"))
	require.NoError(t, h.send(t, fresh, `{"type":"new_chat"}`))
	assert.Equal(t, seen, agent.count(), "old agent receives nothing")
	assert.Equal(t, 1, fresh.count())
}

func TestRelay_Usage(t *testing.T) {
	t.Parallel()
	h := newHarness()
	plugin, agent := h.pair(t)

	require.NoError(t, h.send(t, agent, `{"type":"agent_response","prompt":"thinking","usage":{"input_tokens":1,"output_tokens":1}}`))
	assert.Equal(t, relay.Usage{}, h.relay.TokenSummary("c1").Usage, "unscoped report is not folded")

	require.NoError(t, h.send(t, agent, `{"type":"agent_response","prompt":"done","is_final":true,"usage":{"input_tokens":100,"output_tokens":40}}`))
	assert.Equal(t, relay.Usage{Requests: 1, InputTokens: 100, OutputTokens: 40, TotalTokens: 140}, h.relay.TokenSummary("c1").Usage)

	require.NoError(t, h.send(t, plugin, `{"type":"tool_call","id":"9","command":"get_node_info","params":{"node_id":"1:1"}}`))
	require.NoError(t, h.send(t, agent, `{"type":"tool_response","id":"9","result":{"usage":{"output_tokens":12,"scope":"tool_output"}}}`))

	s := h.relay.TokenSummary("c1")
	assert.Equal(t, 140, s.TotalTokens, "tool output never changes totals")
	assert.Equal(t, map[string]int{"get_node_info": 12}, s.PerToolOutputTokens)

	var types []relay.UsageRecordType
	for _, rec := range h.usage.all() {
		types = append(types, rec.Type)
	}
	assert.Equal(t, []relay.UsageRecordType{
		relay.RecordTokenUsage,
		relay.RecordTokenUsage,
		relay.RecordTokenSummary,
		relay.RecordTokenUsage,
	}, types)

	status := h.relay.Status()
	assert.Equal(t, 0, status.PendingToolCalls)
	assert.Contains(t, status.Usage, "c1")
	assert.Len(t, status.Channels, 1)
}

func TestRelay_PersistenceFailureStillForwards(t *testing.T) {
	t.Parallel()
	failing := &mock.TranscriptLog{AppendTranscriptFn: func(relay.TranscriptRecord) error {
		return errors.Join(errors.New("read-only file system"), relay.ErrPersistence)
	}}
	r := relay.New(relay.WithTranscriptLog(failing))
	plugin, agent := newRecorder("p"), newRecorder("a")
	require.NoError(t, r.HandleFrame(agent, []byte(`{"type":"join","role":"agent","channel":"c1"}`)))
	require.NoError(t, r.HandleFrame(plugin, []byte(`{"type":"join","role":"plugin","channel":"c1"}`)))

	prompt := `{"type":"user_prompt","prompt":"hi"}`
	require.NoError(t, r.HandleFrame(plugin, []byte(prompt)))
	assert.Equal(t, prompt, string(agent.lastRaw(t)))
}

func TestRelay_TranscriptContent(t *testing.T) {
	t.Parallel()
	h := newHarness()
	plugin, agent := h.pair(t)

	require.NoError(t, h.send(t, plugin, `{"type":"new_chat"}`))
	require.NoError(t, h.send(t, plugin, `{"type":"user_prompt","prompt":"draw"}`))
	require.NoError(t, h.send(t, agent, `{"type":"agent_response_chunk","chunk":"dr","is_partial":true}`))
	require.NoError(t, h.send(t, agent, `{"type":"progress_update","message":"50%"}`))
	require.NoError(t, h.send(t, agent, `{"type":"agent_response","prompt":"drawn","is_final":true}`))
	require.NoError(t, h.send(t, agent, `{"type":"error","message":"agent crashed"}`))

	records := h.transcript.all()
	require.Len(t, records, 4)
	assert.Equal(t, relay.TypeNewChat, records[0].Type)
	assert.Equal(t, "draw", records[1].Text)
	assert.Equal(t, "drawn", records[2].Text)
	assert.Equal(t, map[string]any{"is_final": true}, records[2].Meta)
	assert.Equal(t, "agent crashed", records[3].Text)
	assert.Equal(t, h.clock.Now(), records[3].Timestamp)
	assert.Equal(t, "c1", records[3].Channel)

	assert.Equal(t, "agent crashed", plugin.last(t)["message"])
}
