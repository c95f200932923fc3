package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/desertthunder/mediaq/internal/formatter"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/urfave/cli/v3"
)

var stdin io.Reader = os.Stdin

func platformArg(cmd *cli.Command) (string, error) {
	p := strings.TrimSpace(cmd.StringArg("platform"))
	if p == "" {
		return "", fmt.Errorf("%w: platform", shared.ErrMissingArgument)
	}
	return p, nil
}

func (r *Runner) writeSession(s *models.PlatformSession) error {
	if s.Username != nil && *s.Username != "" {
		return r.writePlain("✓ %s session %s (%s)\n", s.PlatformID, strings.ToLower(string(s.Status)), *s.Username)
	}
	return r.writePlain("✓ %s session %s\n", s.PlatformID, strings.ToLower(string(s.Status)))
}

// SessionList prints one row per platform.
func (r *Runner) SessionList(ctx context.Context, cmd *cli.Command) error {
	sessions, err := r.service().GetAuthStatus(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(sessions, true)
	}
	return r.writeBytes(formatter.SessionsTable(sessions))
}

// SessionSet stores pasted cookie text read from a file or stdin.
func (r *Runner) SessionSet(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformArg(cmd)
	if err != nil {
		return err
	}

	var data []byte
	if path := cmd.String("file"); path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}

	session, err := r.service().UpdateSession(ctx, platform, string(data), string(models.MethodManual))
	if err != nil {
		return err
	}
	return r.writeSession(session)
}

// SessionCurl stores the cookie header of a "Copy as cURL" command.
func (r *Runner) SessionCurl(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformArg(cmd)
	if err != nil {
		return err
	}

	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")
	if curlCmd == "" && curlFile == "" {
		return fmt.Errorf("%w: either --curl or --curl-file must be provided", shared.ErrMissingArgument)
	}
	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidRequest)
	}

	if curlFile != "" {
		data, err := os.ReadFile(curlFile)
		if err != nil {
			return fmt.Errorf("failed to read cURL file: %w", err)
		}
		curlCmd = string(data)
	}

	headers, err := shared.ParseCurlCommand([]byte(curlCmd))
	if err != nil {
		return err
	}
	r.logger.Debug("parsed cURL command", "headers", len(headers.Headers), "cookies", headers.Cookie != "")

	session, err := r.service().ImportCurl(ctx, platform, curlCmd)
	if err != nil {
		return err
	}
	return r.writeSession(session)
}

// SessionLogin opens the login page, then tells the user how to finish.
func (r *Runner) SessionLogin(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformArg(cmd)
	if err != nil {
		return err
	}
	if err := r.service().OpenLoginWindow(ctx, platform); err != nil {
		return err
	}

	r.writePlain("✓ Opened the %s login page in %s\n", platform, r.config.Sessions.LoginBrowser)
	r.writePlainln("Next steps:")
	r.writePlain("1. Sign in, then close the browser completely\n")
	r.writePlain("2. Run 'mediaq session check %s'\n", platform)
	return nil
}

// SessionCheck reads the login back from the login browser.
func (r *Runner) SessionCheck(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformArg(cmd)
	if err != nil {
		return err
	}
	session, err := r.service().CheckLogin(ctx, platform)
	if err != nil {
		return err
	}
	return r.writeSession(session)
}

// SessionImport imports cookies from a local browser profile.
func (r *Runner) SessionImport(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformArg(cmd)
	if err != nil {
		return err
	}
	session, err := r.service().ImportFromBrowser(ctx, platform, cmd.String("browser"))
	if err != nil {
		return err
	}
	return r.writeSession(session)
}

// SessionDelete forgets a platform's session.
func (r *Runner) SessionDelete(ctx context.Context, cmd *cli.Command) error {
	platform, err := platformArg(cmd)
	if err != nil {
		return err
	}
	if err := r.service().DeleteSession(ctx, platform); err != nil {
		return err
	}
	return r.writePlain("✓ %s session removed\n", platform)
}
