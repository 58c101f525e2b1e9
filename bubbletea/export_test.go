package bubbletea

import "time"

// BlockSeparator exports blockSeparator for testing.
func BlockSeparator(prev, curr MessageBlock) string {
	return blockSeparator(prev, curr)
}

// RenderContent exports renderContent for testing.
func RenderContent(m Model) string {
	return m.renderContent()
}

// AllExpanded reports whether the expand-all toggle is on.
func AllExpanded(m Model) bool {
	return m.allExpanded
}

// BlockFocus returns the index of the focused block.
func BlockFocus(m Model) int {
	return m.blockFocus
}

// Blocks returns the rendered blocks.
func Blocks(m Model) []MessageBlock {
	return m.blocks
}

// Truncate exports truncate for testing.
func Truncate(s string, width int) string {
	return truncate(s, width)
}

// FormatDuration exports formatDuration for testing.
func FormatDuration(d time.Duration) string {
	return formatDuration(d)
}
