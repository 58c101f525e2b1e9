package relay

// Theme defines semantic color mappings for the transcript viewer using
// ANSI color indices (0-15). The terminal's own palette supplies the RGB
// values.
type Theme struct {
	Plugin   int // Plugin-side accents (user prompts, tool results)
	Agent    int // Agent-side accents
	ToolCall int // Tool call header
	Error    int // Error messages and failed results
	Success  int // Success indicators
	Muted    int // Status bar, timestamps, metadata
	CodeBg   int // Code block background
	Accent   int // Headings, links
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Plugin:   4,
		Agent:    6,
		ToolCall: 3,
		Error:    1,
		Success:  2,
		Muted:    8,
		CodeBg:   0,
		Accent:   5,
	}
}
