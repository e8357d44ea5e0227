package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run boots the TUI program and blocks until it exits.
func Run(ctx context.Context, deps Deps) error {
	m := newModel(ctx, deps)
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := program.Run()
	if deps.Controller != nil && deps.Controller.Visual() != nil {
		deps.Controller.Visual().CancelBackfill()
	}
	return err
}
