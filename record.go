package relay

import (
	"errors"
	"time"
)

// TranscriptRecord is one line of the transcript log describing a tool or
// chat event observed on a channel.
type TranscriptRecord struct {
	Timestamp time.Time
	Channel   string
	From      Role
	Type      MessageType
	Text      string
	Meta      map[string]any
}

// UsageRecordType distinguishes individual usage reports from cumulative
// channel summaries in the token log.
type UsageRecordType string

const (
	RecordTokenUsage   UsageRecordType = "token_usage"
	RecordTokenSummary UsageRecordType = "token_summary"
)

// UsageRecord is one line of the token-usage log.
type UsageRecord struct {
	Timestamp time.Time
	Channel   string
	From      Role
	Type      UsageRecordType
	Usage     Usage
	Raw       map[string]any
	Scope     UsageScope
	TurnID    string
	Tool      string

	// PerToolOutputTokens is set on token_summary records only.
	PerToolOutputTokens map[string]int
}

// TranscriptLog persists transcript records.
type TranscriptLog interface {
	AppendTranscript(rec TranscriptRecord) error
}

// UsageLog persists token-usage records.
type UsageLog interface {
	AppendUsage(rec UsageRecord) error
}

// TranscriptLogs fans a record out to several logs. Every log is attempted;
// failures are joined.
type TranscriptLogs []TranscriptLog

// AppendTranscript implements TranscriptLog.
func (ls TranscriptLogs) AppendTranscript(rec TranscriptRecord) error {
	var errs []error
	for _, l := range ls {
		if err := l.AppendTranscript(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UsageLogs fans a record out to several logs. Every log is attempted;
// failures are joined.
type UsageLogs []UsageLog

// AppendUsage implements UsageLog.
func (ls UsageLogs) AppendUsage(rec UsageRecord) error {
	var errs []error
	for _, l := range ls {
		if err := l.AppendUsage(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discardLog struct{}

func (discardLog) AppendTranscript(TranscriptRecord) error { return nil }
func (discardLog) AppendUsage(UsageRecord) error           { return nil }

// Interface compliance checks.
var (
	_ TranscriptLog = TranscriptLogs(nil)
	_ UsageLog      = UsageLogs(nil)
	_ TranscriptLog = discardLog{}
	_ UsageLog      = discardLog{}
)
