package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/services"
	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIGet makes a direct GET request to the server
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	r.logger.Info("GET request", "path", path)

	resp, err := r.client().Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return r.writeResponse(resp, cmd.Bool("pretty"))
}

// APIPost makes a direct POST request to the server
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	data := cmd.String("data")

	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	if data == "" {
		data = "{}"
	}

	var jsonTest any
	if err := json.Unmarshal([]byte(data), &jsonTest); err != nil {
		return fmt.Errorf("%w: data is not valid JSON: %v", shared.ErrInvalidRequest, err)
	}

	r.logger.Info("POST request", "path", path)

	resp, err := r.client().Do(ctx, http.MethodPost, path, []byte(data))
	if err != nil {
		return err
	}
	return r.writeResponse(resp, cmd.Bool("pretty"))
}

func (r *Runner) writeResponse(resp *services.APIResponse, pretty bool) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: status %d, body: %s", resp.StatusCode, string(resp.Body))
	}

	var data any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return r.writePlain("%s\n", resp.Body)
	}
	return r.writeJSON(data, pretty)
}

// apiDump is a point-in-time copy of everything the server reports.
type apiDump struct {
	Queue    *models.QueueStatus       `json:"queue"`
	Sessions []*models.PlatformSession `json:"sessions"`
}

// APIDump writes the queue snapshot and every session as a single JSON document.
func (r *Runner) APIDump(ctx context.Context, cmd *cli.Command) error {
	svc := r.service()

	queue, err := svc.GetQueueStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch queue: %w", err)
	}
	sessions, err := svc.GetAuthStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch sessions: %w", err)
	}
	dump := apiDump{Queue: queue, Sessions: sessions}

	if saveFile := cmd.String("save"); saveFile != "" {
		data, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal dump: %w", err)
		}
		if err := os.WriteFile(saveFile, data, 0644); err != nil {
			return fmt.Errorf("failed to write dump: %w", err)
		}
		r.logger.Info("dump saved", "file", saveFile)
		return r.writePlain("✓ Dump saved to %s\n", saveFile)
	}

	return r.writeJSON(dump, cmd.Bool("pretty"))
}

// apiCommand handles direct API calls for debugging a running server
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the mediaq HTTP API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the JSON response",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "JSON body to send",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIPost,
			},
			{
				Name:  "dump",
				Usage: "Queue and session state as one JSON document",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
					&cli.StringFlag{
						Name:  "save",
						Usage: "Write the dump to this file instead of stdout",
					},
				},
				Action: r.APIDump,
			},
		},
	}
}
