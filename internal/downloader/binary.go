package downloader

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
)

// Version asks the downloader for its version string.
func Version(ctx context.Context, runner Runner) (string, error) {
	stdout, stderr, err := runner.Output(ctx, []string{"--version"})
	if err != nil {
		return "", withStderr(err, stderr)
	}
	return parseVersion(stdout)
}

// parseVersion returns the first non-blank line, e.g. "2025.01.15".
func parseVersion(out []byte) (string, error) {
	for line := range strings.SplitSeq(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%w: empty version output", shared.ErrParse)
}

// Status reports whether binary can be run and which version it is. Failures are recorded in the result.
func Status(ctx context.Context, runner Runner, binary string) models.DownloaderInfo {
	info := models.DownloaderInfo{Binary: binary}
	version, err := Version(ctx, runner)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Available = true
	info.Version = version
	return info
}

// Update runs the downloader's self-update (-U) and reports the version before and after.
func Update(ctx context.Context, runner Runner, binary string) (models.DownloaderInfo, error) {
	info := models.DownloaderInfo{Binary: binary}
	previous, err := Version(ctx, runner)
	if err != nil {
		return info, err
	}
	info.PreviousVersion = previous

	if _, stderr, err := runner.Output(ctx, []string{"-U"}); err != nil {
		return info, fmt.Errorf("self-update failed: %w", withStderr(err, stderr))
	}

	version, err := Version(ctx, runner)
	if err != nil {
		return info, err
	}
	info.Available = true
	info.Version = version
	return info, nil
}

func withStderr(err error, stderr []byte) error {
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}
