// Package app is the terminal UI shell. It is a thin presentation layer:
// everything it shows comes from the core services.
package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/mangetsu/pkg/app/screens"
	"github.com/kerbaras/mangetsu/pkg/services"
)

// App drives the downloads monitor.
type App struct {
	queue *services.Queue
}

// NewApp returns an App watching queue.
func NewApp(queue *services.Queue) *App {
	return &App{queue: queue}
}

// Run blocks until the user quits the monitor.
func (a *App) Run() error {
	model := screens.NewDownloadsScreen(a.queue)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
