package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Request errors, returned synchronously to the caller
	ErrInvalidRequest      = fmt.Errorf("invalid request")
	ErrUnsupportedPlatform = fmt.Errorf("%w: unsupported platform", ErrInvalidRequest)
	ErrNotFound            = fmt.Errorf("not found")
	ErrInvalidTransition   = fmt.Errorf("invalid status transition")

	// Download errors
	ErrTransientDownload = fmt.Errorf("transient download error")
	ErrSubprocessCrash   = fmt.Errorf("%w: downloader process crashed", ErrTransientDownload)
	ErrWatchdog          = fmt.Errorf("%w: downloader stopped responding", ErrSubprocessCrash)
	ErrAuthRequired      = fmt.Errorf("authentication required")

	// Session import errors
	ErrBrowserLocked = fmt.Errorf("browser cookie store is locked")
	ErrParse         = fmt.Errorf("parse error")

	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrMissingArgument    = fmt.Errorf("missing required argument")
)

// IsTransient reports whether err should be retried by a worker.
func IsTransient(err error) bool {
	return err != nil && errors.Is(err, ErrTransientDownload) && !errors.Is(err, ErrAuthRequired)
}
