package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

// DownloaderVersion prints the downloader binary and version reported by the server.
func (r *Runner) DownloaderVersion(ctx context.Context, cmd *cli.Command) error {
	info, err := r.service().GetDownloaderStatus(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(info, true)
	}
	if !info.Available {
		r.writePlain("✗ %s is not usable: %s\n", info.Binary, info.Error)
		return errors.New("downloader unavailable")
	}
	return r.writePlain("%s %s\n", info.Binary, info.Version)
}

// DownloaderUpdate runs the downloader's self-update on the server.
func (r *Runner) DownloaderUpdate(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("updating downloader, this can take a minute")
	info, err := r.service().UpdateDownloader(ctx)
	if err != nil {
		return fmt.Errorf("downloader update failed: %w", err)
	}
	if cmd.Bool("json") {
		return r.writeJSON(info, true)
	}
	if info.Updated() {
		return r.writePlain("✓ %s updated %s → %s\n", info.Binary, info.PreviousVersion, info.Version)
	}
	return r.writePlain("✓ %s is up to date (%s)\n", info.Binary, info.Version)
}
