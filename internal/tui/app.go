package tui

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/foresight/internal/event"
)

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	model   Model
	bus     *event.Bus
	opts    []tea.ProgramOption
}

// New creates a new TUI application for p. Events published on bus are
// forwarded to the program while it runs.
func New(ctx context.Context, p Pipeline, bus *event.Bus, opts ...tea.ProgramOption) *App {
	return &App{
		model: NewModel(ctx, p),
		bus:   bus,
		opts:  opts,
	}
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run(ctx context.Context) error {
	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, a.opts...)
	a.program = tea.NewProgram(a.model, opts...)

	subID := a.bus.SubscribeAll(func(e event.Event) {
		if msg := msgFromEvent(e); msg != nil {
			a.program.Send(msg)
		}
	})
	defer a.bus.Unsubscribe(subID)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigChan:
			a.program.Send(tea.Quit())
		case <-done:
		}
	}()

	_, err := a.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
