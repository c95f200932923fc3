package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/desertthunder/mediaq/internal/ui"
	"github.com/urfave/cli/v3"
)

const defaultTUILog = "./tmp/mediaq-tui.log"

// Watch launches the live queue dashboard against the configured server.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Log.File
	if path == "" {
		path = defaultTUILog
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(path)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(ctx, r.service())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
