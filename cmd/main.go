package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	if err := newApp(runner).Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrServiceUnavailable) {
			logger.Fatal("cannot reach the mediaq server, is `mediaq serve` running?", "error", err)
		}
		logger.Fatalf("application error: %v", err)
	}
}

func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:    "mediaq",
		Usage:   "Queue and download media from YouTube, TikTok, Instagram and X",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("MEDIAQ_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Base URL of a running `mediaq serve` (defaults to server.host and server.port)",
				Sources: cli.EnvVars("MEDIAQ_SERVER"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   runner.Before,
		Commands: runner.register(),
	}
}
