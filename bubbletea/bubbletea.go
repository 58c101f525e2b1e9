// Package bubbletea provides a Bubble Tea viewer that follows a relay
// transcript and renders it as blocks.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/relay"
)

// FetchFunc returns transcript records appended since the previous call.
// It is called repeatedly from a Bubble Tea command.
type FetchFunc func() ([]relay.TranscriptRecord, error)

// Run creates and runs the Bubble Tea program. It blocks until the program
// exits. Cancelling ctx quits the program.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// RecordsMsg delivers the result of one fetch.
type RecordsMsg struct {
	Records []relay.TranscriptRecord
	Err     error
}

type tickMsg struct{}
