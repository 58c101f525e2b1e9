package relay

import (
	"sync"
	"time"
)

// PendingToolCall is a tool_call awaiting its tool_response.
type PendingToolCall struct {
	ID      string
	Command string
	Params  any
	Start   time.Time
}

// Resolution pairs a completed call with its measured duration.
type Resolution struct {
	Call     PendingToolCall
	Duration time.Duration
}

type callKey struct {
	channel string
	id      string
}

// Correlator matches tool_response frames to the tool_call frames that
// preceded them. Calls are keyed by channel and id so concurrent channels
// may reuse ids.
//
// Calls that never receive a response stay pending for the life of the
// process; Pending reports how many there are.
type Correlator struct {
	mu      sync.Mutex
	pending map[callKey]PendingToolCall
	now     func() time.Time
}

// NewCorrelator creates a Correlator that timestamps calls with now. A nil
// now uses time.Now.
func NewCorrelator(now func() time.Time) *Correlator {
	if now == nil {
		now = time.Now
	}
	return &Correlator{
		pending: make(map[callKey]PendingToolCall),
		now:     now,
	}
}

// Begin records a call. A second call with an id that is still pending
// replaces the first.
func (c *Correlator) Begin(channel, id, command string, params any) PendingToolCall {
	call := PendingToolCall{ID: id, Command: command, Params: params, Start: c.now()}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[callKey{channel: channel, id: id}] = call
	return call
}

// Resolve removes the pending call with the given id and returns it with
// the elapsed time. It returns false for unknown or already resolved ids.
func (c *Correlator) Resolve(channel, id string) (Resolution, bool) {
	key := callKey{channel: channel, id: id}
	c.mu.Lock()
	call, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return Resolution{}, false
	}
	d := c.now().Sub(call.Start)
	if d < 0 {
		d = 0
	}
	return Resolution{Call: call, Duration: d}, true
}

// Pending returns the number of unresolved calls.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
