package services

import (
	"errors"
	"net/http"

	"github.com/desertthunder/mediaq/internal/shared"
)

// statusErrors pairs HTTP status codes with sentinels. Order matters: more specific sentinels first.
var statusErrors = []struct {
	status int
	err    error
}{
	{http.StatusConflict, shared.ErrInvalidTransition},
	{http.StatusNotFound, shared.ErrNotFound},
	{http.StatusLocked, shared.ErrBrowserLocked},
	{http.StatusUnprocessableEntity, shared.ErrParse},
	{http.StatusUnauthorized, shared.ErrAuthRequired},
	{http.StatusBadRequest, shared.ErrInvalidRequest},
	{http.StatusBadRequest, shared.ErrMissingArgument},
	{http.StatusServiceUnavailable, shared.ErrServiceUnavailable},
}

// HTTPStatus maps an error from the service layer to the status code the API responds with.
func HTTPStatus(err error) int {
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			return se.status
		}
	}
	return http.StatusInternalServerError
}

// RemoteError is a failure reported by the API. It unwraps to the sentinel matching its status code, so
// callers use [errors.Is] the same way against [Local] and [Client].
type RemoteError struct {
	StatusCode int
	Message    string
	sentinel   error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.sentinel
}

func errorFromStatus(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	re := &RemoteError{StatusCode: status, Message: message}
	for _, se := range statusErrors {
		if se.status == status {
			re.sentinel = se.err
			break
		}
	}
	if status == http.StatusTooManyRequests {
		re.sentinel = shared.ErrServiceUnavailable
	}
	return re
}
