package relay_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/mock"
	"github.com/stretchr/testify/require"
)

// recorder is a connection that keeps every frame sent to it.
type recorder struct {
	mock.Conn
	mu     sync.Mutex
	frames [][]byte
}

func newRecorder(id string) *recorder {
	r := &recorder{}
	r.IDFn = func() string { return id }
	r.SendFn = func(data []byte) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.frames = append(r.frames, append([]byte(nil), data...))
		return nil
	}
	return r
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) lastRaw(t *testing.T) []byte {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.frames, "no frames sent to %s", r.ID())
	return r.frames[len(r.frames)-1]
}

func (r *recorder) last(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(r.lastRaw(t), &m))
	return m
}

// transcript collects transcript records in memory.
type transcript struct {
	mock.TranscriptLog
	mu      sync.Mutex
	records []relay.TranscriptRecord
}

func newTranscript() *transcript {
	l := &transcript{}
	l.AppendTranscriptFn = func(rec relay.TranscriptRecord) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.records = append(l.records, rec)
		return nil
	}
	return l
}

func (l *transcript) all() []relay.TranscriptRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]relay.TranscriptRecord(nil), l.records...)
}

// usageLog collects usage records in memory.
type usageLog struct {
	mock.UsageLog
	mu      sync.Mutex
	records []relay.UsageRecord
}

func newUsageLog() *usageLog {
	l := &usageLog{}
	l.AppendUsageFn = func(rec relay.UsageRecord) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.records = append(l.records, rec)
		return nil
	}
	return l
}

func (l *usageLog) all() []relay.UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]relay.UsageRecord(nil), l.records...)
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mustParse(t *testing.T, s string) *relay.Frame {
	t.Helper()
	f, err := relay.ParseFrame([]byte(s))
	require.NoError(t, err)
	return f
}
