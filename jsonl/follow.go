package jsonl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/fwojciec/relay"
)

// Follower reads transcript records appended to a file since the previous
// poll. A file that shrinks is treated as rotated and read from the start.
type Follower struct {
	path    string
	offset  int64
	partial []byte
}

// NewFollower creates a Follower positioned at the start of path.
func NewFollower(path string) *Follower {
	return &Follower{path: path}
}

// Path returns the followed file.
func (f *Follower) Path() string { return f.path }

// Poll returns the complete records written since the last call. A missing
// file yields no records. Lines that do not decode are skipped.
func (f *Follower) Poll() ([]relay.TranscriptRecord, error) {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat transcript: %w", err)
	}
	if info.Size() < f.offset {
		f.offset = 0
		f.partial = nil
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek transcript: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	f.offset += int64(len(data))

	data = append(f.partial, data...)
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		f.partial = data
		return nil, nil
	}
	f.partial = append([]byte(nil), data[end+1:]...)

	var records []relay.TranscriptRecord
	for _, line := range bytes.Split(data[:end], []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		rec, err := UnmarshalTranscript(line)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadUsage decodes every record of a token-usage file.
func ReadUsage(path string) ([]relay.UsageRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open usage log: %w", err)
	}
	defer file.Close()

	var records []relay.UsageRecord
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		rec, err := UnmarshalUsage(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan usage log: %w", err)
	}
	return records, nil
}

// LatestSummaries returns the last token_summary record of each channel.
func LatestSummaries(records []relay.UsageRecord) map[string]relay.UsageRecord {
	out := make(map[string]relay.UsageRecord)
	for _, rec := range records {
		if rec.Type == relay.RecordTokenSummary {
			out[rec.Channel] = rec
		}
	}
	return out
}
