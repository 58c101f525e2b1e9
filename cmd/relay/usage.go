package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fwojciec/relay/jsonl"
	"github.com/fwojciec/relay/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newUsageCmd(v *viper.Viper) *cobra.Command {
	var (
		dbPath string
		asJSON bool
		tools  bool
	)
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show cumulative token usage per channel",
		Long:  "usage reads the latest token summary of every channel from the audit database (--db) or, without it, from the token usage log.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd, keyUsageLog); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if tools {
				if dbPath == "" {
					return errors.New("--tools requires --db")
				}
				outputs, err := toolOutputsFromDB(cmd, dbPath)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), outputs)
				}
				return writeToolTable(cmd.OutOrStdout(), outputs)
			}
			var rows []usageRow
			if dbPath != "" {
				rows, err = usageFromDB(cmd, dbPath)
			} else {
				rows, err = usageFromLog(existingPath(jsonl.Candidates(cfg.UsageLog, jsonl.UsageFile)))
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeUsageJSON(cmd.OutOrStdout(), rows)
			}
			return writeUsageTable(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Read from this audit database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&tools, "tools", false, "Show output tokens per tool across all channels (requires --db)")
	cmd.Flags().String("usage-log", "", "Token usage log path (default: first existing default location)")
	return cmd
}

type usageRow struct {
	Channel             string         `json:"channel"`
	Requests            int            `json:"requests"`
	InputTokens         int            `json:"input_tokens"`
	OutputTokens        int            `json:"output_tokens"`
	TotalTokens         int            `json:"total_tokens"`
	PerToolOutputTokens map[string]int `json:"per_tool_output_tokens"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func usageFromDB(cmd *cobra.Command, path string) ([]usageRow, error) {
	store, err := sqlite.OpenExisting(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	channels, err := store.ChannelUsage(cmd.Context())
	if err != nil {
		return nil, err
	}
	rows := make([]usageRow, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, usageRow{
			Channel:             ch.Channel,
			Requests:            ch.Summary.Requests,
			InputTokens:         ch.Summary.InputTokens,
			OutputTokens:        ch.Summary.OutputTokens,
			TotalTokens:         ch.Summary.TotalTokens,
			PerToolOutputTokens: ch.Summary.PerToolOutputTokens,
			UpdatedAt:           ch.UpdatedAt,
		})
	}
	return rows, nil
}

type toolRow struct {
	Tool         string `json:"tool"`
	OutputTokens int    `json:"output_tokens"`
	Reports      int    `json:"reports"`
}

func toolOutputsFromDB(cmd *cobra.Command, path string) ([]toolRow, error) {
	store, err := sqlite.OpenExisting(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	outputs, err := store.ToolOutputs(cmd.Context())
	if err != nil {
		return nil, err
	}
	rows := make([]toolRow, 0, len(outputs))
	for _, o := range outputs {
		rows = append(rows, toolRow{Tool: o.Tool, OutputTokens: o.OutputTokens, Reports: o.Reports})
	}
	return rows, nil
}

func usageFromLog(path string) ([]usageRow, error) {
	records, err := jsonl.ReadUsage(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	latest := jsonl.LatestSummaries(records)
	rows := make([]usageRow, 0, len(latest))
	for channel, rec := range latest {
		perTool := rec.PerToolOutputTokens
		if perTool == nil {
			perTool = map[string]int{}
		}
		rows = append(rows, usageRow{
			Channel:             channel,
			Requests:            rec.Usage.Requests,
			InputTokens:         rec.Usage.InputTokens,
			OutputTokens:        rec.Usage.OutputTokens,
			TotalTokens:         rec.Usage.TotalTokens,
			PerToolOutputTokens: perTool,
			UpdatedAt:           rec.Timestamp,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Channel < rows[j].Channel })
	return rows, nil
}

func writeUsageJSON(w io.Writer, rows []usageRow) error {
	if rows == nil {
		rows = []usageRow{}
	}
	return writeJSON(w, rows)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeToolTable(w io.Writer, rows []toolRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no tool output recorded")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TOOL", "OUTPUT", "REPORTS")
	for _, r := range rows {
		t.Row(r.Tool, strconv.Itoa(r.OutputTokens), strconv.Itoa(r.Reports))
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func writeUsageTable(w io.Writer, rows []usageRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no token summaries recorded")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("CHANNEL", "REQUESTS", "INPUT", "OUTPUT", "TOTAL", "TOOL OUTPUT")
	for _, r := range rows {
		t.Row(r.Channel,
			strconv.Itoa(r.Requests),
			strconv.Itoa(r.InputTokens),
			strconv.Itoa(r.OutputTokens),
			strconv.Itoa(r.TotalTokens),
			perToolSummary(r.PerToolOutputTokens),
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// perToolSummary renders per-tool output tokens largest first.
func perToolSummary(perTool map[string]int) string {
	if len(perTool) == 0 {
		return "-"
	}
	tools := make([]string, 0, len(perTool))
	for tool := range perTool {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		if perTool[tools[i]] != perTool[tools[j]] {
			return perTool[tools[i]] > perTool[tools[j]]
		}
		return tools[i] < tools[j]
	})
	parts := make([]string, len(tools))
	for i, tool := range tools {
		parts[i] = tool + "=" + strconv.Itoa(perTool[tool])
	}
	return strings.Join(parts, ", ")
}
