package relay

import (
	"encoding/json"
	"math"
	"strconv"
)

// Usage tracks token consumption reported by the agent.
//
// Requests counts model requests covered by the report. Reports that omit
// it still count as one request when folded into a channel total.
type Usage struct {
	Requests     int
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add returns the field-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Requests:     u.Requests + o.Requests,
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
	}
}

// UsageScope tags what a usage report accounts for.
//
// Turn summaries and tool output are independent accounting axes: total
// conversation cost versus per-tool cost attribution. They are never added
// together.
type UsageScope string

const (
	ScopeUnscoped    UsageScope = ""
	ScopeTurnSummary UsageScope = "turn_summary"
	ScopeToolOutput  UsageScope = "tool_output"
)

// UsageReport is a usage object found inside a frame.
type UsageReport struct {
	Usage  Usage
	Raw    map[string]any
	Scope  UsageScope
	TurnID string
	Tool   string
}

// TokenSummary is the per-channel rollup. Usage holds the cumulative
// turn-summary totals; PerToolOutputTokens holds tool-output tokens keyed by
// tool name.
type TokenSummary struct {
	Usage
	PerToolOutputTokens map[string]int
}

var (
	inputKeys    = []string{"input_tokens", "prompt_tokens", "inputTokens", "promptTokens"}
	outputKeys   = []string{"output_tokens", "completion_tokens", "outputTokens", "completionTokens"}
	totalKeys    = []string{"total_tokens", "totalTokens"}
	requestsKeys = []string{"requests", "request_count", "requestCount"}
)

// ExtractUsage looks for usage data in the known shapes, in order: a
// "usage" object, "meta.usage", "result.usage", and finally flat numeric
// token fields on the frame itself. It returns false when none carries a
// token count.
func ExtractUsage(f *Frame) (UsageReport, bool) {
	fields := f.Fields()
	candidates := []map[string]any{
		objectAt(fields, "usage"),
		objectAt(objectAt(fields, "meta"), "usage"),
		objectAt(objectAt(fields, "result"), "usage"),
	}
	for _, obj := range candidates {
		if obj == nil {
			continue
		}
		if u, ok := parseUsage(obj); ok {
			rep := UsageReport{Usage: u, Raw: obj}
			rep.annotate(obj, objectAt(fields, "meta"), fields)
			return rep, true
		}
	}
	if u, ok := parseUsage(fields); ok {
		raw := make(map[string]any)
		for _, keys := range [][]string{inputKeys, outputKeys, totalKeys, requestsKeys} {
			for _, k := range keys {
				if v, ok := fields[k]; ok {
					raw[k] = v
				}
			}
		}
		rep := UsageReport{Usage: u, Raw: raw}
		rep.annotate(objectAt(fields, "meta"), fields)
		return rep, true
	}
	return UsageReport{}, false
}

// annotate fills scope, turn id and tool from the first source carrying
// each of them.
func (r *UsageReport) annotate(sources ...map[string]any) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		if r.Scope == ScopeUnscoped {
			r.Scope = UsageScope(firstString(src, "scope", "usage_scope"))
		}
		if r.TurnID == "" {
			r.TurnID = firstString(src, "turn_id", "turnId")
		}
		if r.Tool == "" {
			r.Tool = firstString(src, "tool", "tool_name", "toolName")
		}
	}
}

func parseUsage(obj map[string]any) (Usage, bool) {
	in, hasIn := firstInt(obj, inputKeys)
	out, hasOut := firstInt(obj, outputKeys)
	total, hasTotal := firstInt(obj, totalKeys)
	if !hasIn && !hasOut && !hasTotal {
		return Usage{}, false
	}
	if !hasTotal {
		total = in + out
	}
	requests, _ := firstInt(obj, requestsKeys)
	return Usage{
		Requests:     requests,
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  total,
	}, true
}

func objectAt(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	obj, _ := m[key].(map[string]any)
	return obj
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstInt(m map[string]any, keys []string) (int, bool) {
	for _, k := range keys {
		if n, ok := toInt(m[k]); ok {
			return n, true
		}
	}
	return 0, false
}

// toInt converts a decoded JSON number to a non-negative int.
func toInt(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return clampInt(float64(i)), true
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return clampInt(f), true
}

func clampInt(f float64) int {
	if f < 0 {
		return 0
	}
	return int(f)
}
