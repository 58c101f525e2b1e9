package jsonl

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/relay"
)

// transcriptDTO is the wire format of one transcript line.
type transcriptDTO struct {
	Timestamp time.Time      `json:"timestamp"`
	Channel   string         `json:"channel"`
	From      string         `json:"from"`
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// usageDTO is the wire format of one token-usage line.
type usageDTO struct {
	Timestamp           time.Time      `json:"timestamp"`
	Channel             string         `json:"channel"`
	From                string         `json:"from"`
	Type                string         `json:"type"`
	Requests            int            `json:"requests"`
	InputTokens         int            `json:"input_tokens"`
	OutputTokens        int            `json:"output_tokens"`
	TotalTokens         int            `json:"total_tokens"`
	Raw                 map[string]any `json:"raw"`
	Scope               string         `json:"scope,omitempty"`
	TurnID              string         `json:"turn_id,omitempty"`
	Tool                string         `json:"tool,omitempty"`
	PerToolOutputTokens map[string]int `json:"per_tool_output_tokens,omitempty"`
}

func transcriptToDTO(rec relay.TranscriptRecord) transcriptDTO {
	return transcriptDTO{
		Timestamp: rec.Timestamp.UTC(),
		Channel:   rec.Channel,
		From:      string(rec.From),
		Type:      string(rec.Type),
		Text:      rec.Text,
		Meta:      rec.Meta,
	}
}

func usageToDTO(rec relay.UsageRecord) usageDTO {
	return usageDTO{
		Timestamp:           rec.Timestamp.UTC(),
		Channel:             rec.Channel,
		From:                string(rec.From),
		Type:                string(rec.Type),
		Requests:            rec.Usage.Requests,
		InputTokens:         rec.Usage.InputTokens,
		OutputTokens:        rec.Usage.OutputTokens,
		TotalTokens:         rec.Usage.TotalTokens,
		Raw:                 rec.Raw,
		Scope:               string(rec.Scope),
		TurnID:              rec.TurnID,
		Tool:                rec.Tool,
		PerToolOutputTokens: rec.PerToolOutputTokens,
	}
}

// UnmarshalTranscript decodes one transcript line.
func UnmarshalTranscript(line []byte) (relay.TranscriptRecord, error) {
	var dto transcriptDTO
	if err := json.Unmarshal(line, &dto); err != nil {
		return relay.TranscriptRecord{}, fmt.Errorf("unmarshal transcript record: %w", err)
	}
	if dto.Type == "" {
		return relay.TranscriptRecord{}, fmt.Errorf("transcript record without type")
	}
	return relay.TranscriptRecord{
		Timestamp: dto.Timestamp,
		Channel:   dto.Channel,
		From:      relay.Role(dto.From),
		Type:      relay.MessageType(dto.Type),
		Text:      dto.Text,
		Meta:      dto.Meta,
	}, nil
}

// UnmarshalUsage decodes one token-usage line.
func UnmarshalUsage(line []byte) (relay.UsageRecord, error) {
	var dto usageDTO
	if err := json.Unmarshal(line, &dto); err != nil {
		return relay.UsageRecord{}, fmt.Errorf("unmarshal usage record: %w", err)
	}
	switch relay.UsageRecordType(dto.Type) {
	case relay.RecordTokenUsage, relay.RecordTokenSummary:
	default:
		return relay.UsageRecord{}, fmt.Errorf("unknown usage record type: %q", dto.Type)
	}
	return relay.UsageRecord{
		Timestamp: dto.Timestamp,
		Channel:   dto.Channel,
		From:      relay.Role(dto.From),
		Type:      relay.UsageRecordType(dto.Type),
		Usage: relay.Usage{
			Requests:     dto.Requests,
			InputTokens:  dto.InputTokens,
			OutputTokens: dto.OutputTokens,
			TotalTokens:  dto.TotalTokens,
		},
		Raw:                 dto.Raw,
		Scope:               relay.UsageScope(dto.Scope),
		TurnID:              dto.TurnID,
		Tool:                dto.Tool,
		PerToolOutputTokens: dto.PerToolOutputTokens,
	}, nil
}

// TranscriptLog writes transcript records to a failover Log.
type TranscriptLog struct {
	*Log
}

// NewTranscriptLog creates a TranscriptLog over the given candidates.
func NewTranscriptLog(candidates ...string) *TranscriptLog {
	return &TranscriptLog{Log: NewLog(candidates...)}
}

// AppendTranscript implements relay.TranscriptLog.
func (l *TranscriptLog) AppendTranscript(rec relay.TranscriptRecord) error {
	return l.Append(transcriptToDTO(rec))
}

// UsageLog writes token-usage records to a failover Log.
type UsageLog struct {
	*Log
}

// NewUsageLog creates a UsageLog over the given candidates.
func NewUsageLog(candidates ...string) *UsageLog {
	return &UsageLog{Log: NewLog(candidates...)}
}

// AppendUsage implements relay.UsageLog.
func (l *UsageLog) AppendUsage(rec relay.UsageRecord) error {
	return l.Append(usageToDTO(rec))
}

// Interface compliance checks.
var (
	_ relay.TranscriptLog = (*TranscriptLog)(nil)
	_ relay.UsageLog      = (*UsageLog)(nil)
)
