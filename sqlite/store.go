// Package sqlite mirrors transcript and usage records into a SQLite audit
// index and reports per-channel usage from it.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fwojciec/relay"
)

// Store is a SQLite-backed audit index. It implements relay.TranscriptLog
// and relay.UsageLog.
type Store struct {
	db *sql.DB
}

// Interface compliance checks.
var (
	_ relay.TranscriptLog = (*Store)(nil)
	_ relay.UsageLog      = (*Store)(nil)
)

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// AppendTranscript implements relay.TranscriptLog.
func (s *Store) AppendTranscript(rec relay.TranscriptRecord) error {
	meta, err := nullableJSON(rec.Meta)
	if err != nil {
		return fmt.Errorf("encode transcript meta: %w: %w", err, relay.ErrPersistence)
	}
	_, err = s.db.ExecContext(context.Background(), `
INSERT INTO transcript_events(ts, channel, sender, type, text, meta_json)
VALUES (?, ?, ?, ?, ?, ?)
`, ts(rec.Timestamp), rec.Channel, string(rec.From), string(rec.Type), rec.Text, meta)
	if err != nil {
		return fmt.Errorf("insert transcript event: %w: %w", err, relay.ErrPersistence)
	}
	return nil
}

// AppendUsage implements relay.UsageLog. token_summary records also
// replace the channel's row in channel_summaries.
func (s *Store) AppendUsage(rec relay.UsageRecord) error {
	if err := s.appendUsage(context.Background(), rec); err != nil {
		return fmt.Errorf("%w: %w", err, relay.ErrPersistence)
	}
	return nil
}

func (s *Store) appendUsage(ctx context.Context, rec relay.UsageRecord) error {
	raw, err := nullableJSON(rec.Raw)
	if err != nil {
		return fmt.Errorf("encode usage raw: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	u := rec.Usage
	if _, err := tx.ExecContext(ctx, `
INSERT INTO usage_events(ts, channel, sender, type, scope, turn_id, tool, requests, input_tokens, output_tokens, total_tokens, raw_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, ts(rec.Timestamp), rec.Channel, string(rec.From), string(rec.Type), string(rec.Scope), rec.TurnID, rec.Tool,
		u.Requests, u.InputTokens, u.OutputTokens, u.TotalTokens, raw); err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}

	if rec.Type == relay.RecordTokenSummary {
		perTool := rec.PerToolOutputTokens
		if perTool == nil {
			perTool = map[string]int{}
		}
		perToolJSON, err := json.Marshal(perTool)
		if err != nil {
			return fmt.Errorf("encode per-tool tokens: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO channel_summaries(channel, requests, input_tokens, output_tokens, total_tokens, per_tool_json, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(channel) DO UPDATE SET
	requests=excluded.requests,
	input_tokens=excluded.input_tokens,
	output_tokens=excluded.output_tokens,
	total_tokens=excluded.total_tokens,
	per_tool_json=excluded.per_tool_json,
	updated_at=excluded.updated_at
`, rec.Channel, u.Requests, u.InputTokens, u.OutputTokens, u.TotalTokens, string(perToolJSON), ts(rec.Timestamp)); err != nil {
			return fmt.Errorf("upsert channel summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit usage: %w", err)
	}
	return nil
}

// ChannelUsage is the latest cumulative usage of one channel.
type ChannelUsage struct {
	Channel   string
	Summary   relay.TokenSummary
	UpdatedAt time.Time
}

// ChannelUsage returns the latest summary of every channel sorted by
// channel key.
func (s *Store) ChannelUsage(ctx context.Context) ([]ChannelUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT channel, requests, input_tokens, output_tokens, total_tokens, per_tool_json, updated_at
FROM channel_summaries
ORDER BY channel
`)
	if err != nil {
		return nil, fmt.Errorf("query channel summaries: %w", err)
	}
	defer rows.Close()

	var out []ChannelUsage
	for rows.Next() {
		var (
			cu        ChannelUsage
			perTool   string
			updatedAt string
		)
		u := &cu.Summary.Usage
		if err := rows.Scan(&cu.Channel, &u.Requests, &u.InputTokens, &u.OutputTokens, &u.TotalTokens, &perTool, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan channel summary: %w", err)
		}
		if err := json.Unmarshal([]byte(perTool), &cu.Summary.PerToolOutputTokens); err != nil {
			return nil, fmt.Errorf("decode per-tool tokens of %s: %w", cu.Channel, err)
		}
		if cu.Summary.PerToolOutputTokens == nil {
			cu.Summary.PerToolOutputTokens = map[string]int{}
		}
		if cu.UpdatedAt, err = parseTS(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at of %s: %w", cu.Channel, err)
		}
		out = append(out, cu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel summaries: %w", err)
	}
	return out, nil
}

// ToolOutput is the output-token total of one tool across all channels.
type ToolOutput struct {
	Tool         string
	OutputTokens int
	Reports      int
}

// ToolOutputs sums tool_output usage reports per tool, largest first.
func (s *Store) ToolOutputs(ctx context.Context) ([]ToolOutput, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT CASE WHEN tool = '' THEN ? ELSE tool END AS t, SUM(output_tokens), COUNT(*)
FROM usage_events
WHERE type = 'token_usage' AND scope = ?
GROUP BY t
`, relay.UnknownTool, string(relay.ScopeToolOutput))
	if err != nil {
		return nil, fmt.Errorf("query tool outputs: %w", err)
	}
	defer rows.Close()

	var out []ToolOutput
	for rows.Next() {
		var t ToolOutput
		if err := rows.Scan(&t.Tool, &t.OutputTokens, &t.Reports); err != nil {
			return nil, fmt.Errorf("scan tool output: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool outputs: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OutputTokens != out[j].OutputTokens {
			return out[i].OutputTokens > out[j].OutputTokens
		}
		return out[i].Tool < out[j].Tool
	})
	return out, nil
}

// TranscriptCount returns the number of transcript events of a channel.
// An empty channel counts every event.
func (s *Store) TranscriptCount(ctx context.Context, channel string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM transcript_events WHERE ? = '' OR channel = ?
`, channel, channel).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transcript events: %w", err)
	}
	return n, nil
}

var errEmptyPath = errors.New("empty database path")

// OpenExisting opens a database for reading. Unlike Open it does not
// create a missing file.
func OpenExisting(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errEmptyPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return Open(ctx, path)
}

func nullableJSON(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
