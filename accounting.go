package relay

import (
	"errors"
	"maps"
	"sync"
	"time"
)

// UnknownTool is the rollup key for tool-output usage that names no tool.
const UnknownTool = "unknown"

// UsageAggregator maintains per-channel token rollups and writes every
// usage report to a UsageLog.
//
// Only turn_summary reports fold into the cumulative totals. tool_output
// reports accumulate per tool and never touch the totals, so the two
// figures can be presented side by side without double counting.
type UsageAggregator struct {
	log UsageLog
	now func() time.Time

	// logMu is held from rollup to append so summaries reach the log in
	// the order they were computed.
	logMu     sync.Mutex
	mu        sync.Mutex
	summaries map[string]*TokenSummary
}

// NewUsageAggregator creates an aggregator writing to log. A nil now uses
// time.Now.
func NewUsageAggregator(log UsageLog, now func() time.Time) *UsageAggregator {
	if log == nil {
		log = discardLog{}
	}
	if now == nil {
		now = time.Now
	}
	return &UsageAggregator{
		log:       log,
		now:       now,
		summaries: make(map[string]*TokenSummary),
	}
}

// Record logs rep as a token_usage record and applies it to the channel
// rollup according to its scope. Folding a turn summary also logs the new
// cumulative token_summary. Log failures are returned after the rollup has
// been updated.
func (a *UsageAggregator) Record(channel string, from Role, rep UsageReport) error {
	a.logMu.Lock()
	defer a.logMu.Unlock()

	ts := a.now()
	records := []UsageRecord{{
		Timestamp: ts,
		Channel:   channel,
		From:      from,
		Type:      RecordTokenUsage,
		Usage:     rep.Usage,
		Raw:       rep.Raw,
		Scope:     rep.Scope,
		TurnID:    rep.TurnID,
		Tool:      rep.Tool,
	}}

	a.mu.Lock()
	switch rep.Scope {
	case ScopeTurnSummary:
		s := a.summary(channel)
		inc := rep.Usage
		if inc.Requests < 1 {
			inc.Requests = 1
		}
		s.Usage = s.Usage.Add(inc)
		records = append(records, UsageRecord{
			Timestamp:           ts,
			Channel:             channel,
			From:                from,
			Type:                RecordTokenSummary,
			Usage:               s.Usage,
			Raw:                 rep.Raw,
			Scope:               rep.Scope,
			TurnID:              rep.TurnID,
			PerToolOutputTokens: maps.Clone(s.PerToolOutputTokens),
		})
	case ScopeToolOutput:
		s := a.summary(channel)
		tool := rep.Tool
		if tool == "" {
			tool = UnknownTool
		}
		s.PerToolOutputTokens[tool] += rep.Usage.OutputTokens
	}
	a.mu.Unlock()

	var errs []error
	for _, rec := range records {
		if err := a.log.AppendUsage(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Summary returns a copy of the rollup for channel.
func (a *UsageAggregator) Summary(channel string) TokenSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.summaries[channel]
	if !ok {
		return TokenSummary{PerToolOutputTokens: map[string]int{}}
	}
	return copySummary(s)
}

// Summaries returns copies of all rollups keyed by channel.
func (a *UsageAggregator) Summaries() map[string]TokenSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]TokenSummary, len(a.summaries))
	for ch, s := range a.summaries {
		out[ch] = copySummary(s)
	}
	return out
}

// summary returns the rollup for channel, creating it. Callers hold mu.
func (a *UsageAggregator) summary(channel string) *TokenSummary {
	s, ok := a.summaries[channel]
	if !ok {
		s = &TokenSummary{PerToolOutputTokens: make(map[string]int)}
		a.summaries[channel] = s
	}
	return s
}

func copySummary(s *TokenSummary) TokenSummary {
	return TokenSummary{Usage: s.Usage, PerToolOutputTokens: maps.Clone(s.PerToolOutputTokens)}
}
