package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Messages sent by the relay itself.
const (
	MsgInvalidFormat = "Invalid message format"
	MsgNotJoined     = "You must join a channel before sending messages"
)

// Relay pairs plugin and agent connections per channel and forwards frames
// between them. It owns the channel registry, the tool-call correlator and
// the usage aggregator; one Relay serves the whole process.
//
// HandleFrame and Disconnect are safe for concurrent use. Frames from one
// connection must be handled sequentially to preserve their order.
type Relay struct {
	channels *ChannelRegistry
	calls    *Correlator
	usage    *UsageAggregator

	schemas    SchemaRegistry
	transcript TranscriptLog
	usageLog   UsageLog
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a [Relay].
type Option func(*Relay)

// WithSchemas sets the registry used to validate tool_call params.
func WithSchemas(s SchemaRegistry) Option {
	return func(r *Relay) { r.schemas = s }
}

// WithTranscriptLog sets the log receiving transcript records.
func WithTranscriptLog(l TranscriptLog) Option {
	return func(r *Relay) { r.transcript = l }
}

// WithUsageLog sets the log receiving token-usage records.
func WithUsageLog(l UsageLog) Option {
	return func(r *Relay) { r.usageLog = l }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithClock sets the time source for timestamps and call durations.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// New creates a Relay. Without options frames are not schema-checked and
// records are discarded.
func New(opts ...Option) *Relay {
	r := &Relay{
		transcript: discardLog{},
		usageLog:   discardLog{},
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "relay")
	r.channels = NewChannelRegistry()
	r.calls = NewCorrelator(r.now)
	r.usage = NewUsageAggregator(r.usageLog, r.now)
	return r
}

// HandleFrame processes one inbound frame from conn. Protocol failures are
// answered with an error frame to conn and returned; the frame is not
// forwarded. A missing counterpart is not an error.
func (r *Relay) HandleFrame(conn Conn, data []byte) error {
	f, err := ParseFrame(data)
	if err != nil {
		r.reject(conn, err)
		return err
	}
	Normalize(f, r.schemas)
	if err := ValidateFrame(f, r.schemas); err != nil {
		r.reject(conn, err)
		return err
	}
	switch f.Type() {
	case TypeJoin:
		return r.join(conn, f)
	case TypePing:
		pong := NewFrame(TypePong)
		if id, ok := f.Get("id"); ok {
			pong.Set("id", id)
		}
		r.send(conn, pong)
		return nil
	case TypePong:
		return nil
	default:
		return r.forward(conn, f)
	}
}

// Disconnect removes conn from its channel and notifies the counterpart.
// Unknown connections are ignored.
func (r *Relay) Disconnect(conn Conn) {
	d, ok := r.channels.Leave(conn)
	if !ok {
		return
	}
	r.logger.Info("left channel", "conn", conn.ID(), "channel", d.Channel, "role", d.Role, "evicted", d.Evicted)
	if d.Counterpart != nil {
		r.send(d.Counterpart, systemFrame(d.Channel, fmt.Sprintf("The %s has disconnected", d.Role)))
	}
}

// Channels returns the registered channels sorted by key.
func (r *Relay) Channels() []ChannelInfo { return r.channels.Channels() }

// ChannelState returns the occupancy of a channel.
func (r *Relay) ChannelState(key string) ChannelState { return r.channels.State(key) }

// PendingToolCalls returns the number of tool calls awaiting a response.
func (r *Relay) PendingToolCalls() int { return r.calls.Pending() }

// TokenSummary returns the usage rollup of a channel.
func (r *Relay) TokenSummary(channel string) TokenSummary { return r.usage.Summary(channel) }

// TokenSummaries returns the usage rollups of all channels.
func (r *Relay) TokenSummaries() map[string]TokenSummary { return r.usage.Summaries() }

// Status is a point-in-time view of the relay.
type Status struct {
	Channels         []ChannelInfo
	PendingToolCalls int
	Usage            map[string]TokenSummary
}

// Status returns a snapshot of channels, pending calls and usage.
func (r *Relay) Status() Status {
	return Status{
		Channels:         r.channels.Channels(),
		PendingToolCalls: r.calls.Pending(),
		Usage:            r.usage.Summaries(),
	}
}

func (r *Relay) join(conn Conn, f *Frame) error {
	roleName, _ := f.String("role")
	role := Role(roleName)
	key, _ := f.String("channel")

	err := r.channels.Join(conn, role, key)
	switch {
	case errors.Is(err, ErrRoleConflict):
		r.logger.Warn("join rejected", "conn", conn.ID(), "channel", key, "role", role, "error", err)
		r.send(conn, errorFrame(fmt.Sprintf("A %s is already connected to channel %s", role, key), key))
		return err
	case errors.Is(err, ErrAlreadyJoined):
		m, _ := r.channels.Lookup(conn)
		r.logger.Warn("join rejected", "conn", conn.ID(), "channel", key, "role", role, "error", err)
		r.send(conn, errorFrame(fmt.Sprintf("Already joined channel %s as %s", m.Channel, m.Role), m.Channel))
		return err
	case err != nil:
		r.reject(conn, err)
		return err
	}

	r.logger.Info("joined channel", "conn", conn.ID(), "channel", key, "role", role)
	ack := map[string]any{"result": true}
	if id, ok := f.Get("id"); ok {
		ack["id"] = id
	}
	r.send(conn, systemFrame(key, ack))
	return nil
}

func (r *Relay) forward(conn Conn, f *Frame) error {
	m, peer, err := r.channels.Route(conn)
	if errors.Is(err, ErrNotJoined) {
		r.logger.Warn("frame from unjoined connection", "conn", conn.ID(), "type", f.Type())
		r.send(conn, errorFrame(MsgNotJoined, ""))
		return err
	}

	r.observe(m, f)

	if errors.Is(err, ErrNoCounterpart) {
		r.logger.Warn("no counterpart", "conn", conn.ID(), "channel", m.Channel, "role", m.Role, "type", f.Type())
		return nil
	}
	r.send(peer, f)
	return nil
}

// observe applies the side effects of a routed frame: call correlation,
// error normalization, transcript and usage records.
func (r *Relay) observe(m Membership, f *Frame) {
	rec := TranscriptRecord{
		Timestamp: r.now(),
		Channel:   m.Channel,
		From:      m.Role,
		Type:      f.Type(),
	}
	var tool string
	logged := true

	switch f.Type() {
	case TypeToolCall:
		id, _ := f.String("id")
		command, _ := f.String("command")
		params, _ := f.Get("params")
		r.calls.Begin(m.Channel, id, command, params)
		tool = command
		rec.Meta = map[string]any{"id": id, "command": command, "params": params}

	case TypeToolResponse:
		id, _ := f.String("id")
		rawErr, hadErr := f.Get("error")
		se, failed := NormalizeFrameError(f)
		rec.Meta = map[string]any{"id": id}
		if v, ok := f.Get("result"); ok {
			rec.Meta["result"] = v
		}
		if hadErr {
			rec.Meta["error"] = rawErr
		}
		if failed {
			rec.Meta["error_structured"] = se.Map()
		}
		if res, ok := r.calls.Resolve(m.Channel, id); ok {
			tool = res.Call.Command
			rec.Meta["tool"] = tool
			rec.Meta["duration_ms"] = res.Duration.Milliseconds()
		}

	case TypeUserPrompt:
		rec.Text, _ = f.String("prompt")

	case TypeAgentResponse:
		rec.Text, _ = f.String("prompt")
		if final, ok := f.Bool("is_final"); ok {
			rec.Meta = map[string]any{"is_final": final}
		}

	case TypeError:
		v, _ := f.Get("message")
		rec.Text = stringify(v)

	case TypeNewChat:

	default:
		logged = false
	}

	if logged {
		if err := r.transcript.AppendTranscript(rec); err != nil {
			r.logger.Warn("transcript not persisted", "channel", m.Channel, "type", rec.Type, "error", err)
		}
	}

	rep, ok := ExtractUsage(f)
	if !ok {
		return
	}
	if rep.Scope == ScopeUnscoped && f.Type() == TypeAgentResponse {
		if final, _ := f.Bool("is_final"); final {
			rep.Scope = ScopeTurnSummary
		}
	}
	if rep.Tool == "" {
		rep.Tool = tool
	}
	if err := r.usage.Record(m.Channel, m.Role, rep); err != nil {
		r.logger.Warn("usage not persisted", "channel", m.Channel, "scope", rep.Scope, "error", err)
	}
}

// reject answers a protocol failure with the generic error frame.
func (r *Relay) reject(conn Conn, err error) {
	m, _ := r.channels.Lookup(conn)
	r.logger.Warn("frame rejected", "conn", conn.ID(), "channel", m.Channel, "role", m.Role, "error", err)
	r.send(conn, errorFrame(MsgInvalidFormat, m.Channel))
}

func (r *Relay) send(conn Conn, f *Frame) {
	data, err := f.Bytes()
	if err != nil {
		r.logger.Error("encode frame", "conn", conn.ID(), "type", f.Type(), "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		r.logger.Warn("send failed", "conn", conn.ID(), "type", f.Type(), "error", err)
	}
}
