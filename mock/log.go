package mock

import "github.com/fwojciec/relay"

// TranscriptLog is a test double for relay.TranscriptLog.
// Set AppendTranscriptFn before calling AppendTranscript.
type TranscriptLog struct {
	AppendTranscriptFn func(rec relay.TranscriptRecord) error
}

// AppendTranscript delegates to AppendTranscriptFn.
func (l *TranscriptLog) AppendTranscript(rec relay.TranscriptRecord) error {
	return l.AppendTranscriptFn(rec)
}

// UsageLog is a test double for relay.UsageLog.
// Set AppendUsageFn before calling AppendUsage.
type UsageLog struct {
	AppendUsageFn func(rec relay.UsageRecord) error
}

// AppendUsage delegates to AppendUsageFn.
func (l *UsageLog) AppendUsage(rec relay.UsageRecord) error {
	return l.AppendUsageFn(rec)
}
