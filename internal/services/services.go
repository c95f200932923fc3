// package services defines interface Service, the command surface of the download queue
//
// In-process ([Local]) and over HTTP ([Client])
package services

import (
	"context"

	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/models"
)

// Service is the command surface consumed by the CLI, the dashboard and the HTTP API.
type Service interface {
	// CreateDownloadTask validates and enqueues a URL. It returns once the task is Queued.
	CreateDownloadTask(ctx context.Context, req CreateTaskRequest) (*models.DownloadTask, error)

	CancelDownloadTask(ctx context.Context, id string) error
	PauseDownloadTask(ctx context.Context, id string) error
	ResumeDownloadTask(ctx context.Context, id string) error
	RetryDownloadTask(ctx context.Context, id string) error

	PauseQueue(ctx context.Context) error
	ResumeQueue(ctx context.Context) error
	SetConcurrency(ctx context.Context, n int) error

	// GetQueueStatus returns the authoritative snapshot. Event consumers reconcile against it.
	GetQueueStatus(ctx context.Context) (*models.QueueStatus, error)

	// GetAuthStatus returns one session per supported platform.
	GetAuthStatus(ctx context.Context) ([]*models.PlatformSession, error)
	UpdateSession(ctx context.Context, platformID, cookies, method string) (*models.PlatformSession, error)
	ImportCurl(ctx context.Context, platformID, curl string) (*models.PlatformSession, error)
	DeleteSession(ctx context.Context, platformID string) error
	OpenLoginWindow(ctx context.Context, platformID string) error
	CheckLogin(ctx context.Context, platformID string) (*models.PlatformSession, error)
	ImportFromBrowser(ctx context.Context, platformID, browser string) (*models.PlatformSession, error)

	// GetDownloaderStatus reports whether the downloader binary runs and its version.
	GetDownloaderStatus(ctx context.Context) (*models.DownloaderInfo, error)
	// UpdateDownloader runs the downloader's self-update and returns the versions before and after.
	UpdateDownloader(ctx context.Context) (*models.DownloaderInfo, error)

	// Subscribe streams events until ctx is done, then closes the channel. With no topics every topic is
	// delivered. ctx must be cancellable: the subscription is released only when it is done.
	Subscribe(ctx context.Context, topics ...events.Topic) (<-chan events.Event, error)
}

// CreateTaskRequest is the body of a task submission.
type CreateTaskRequest struct {
	URL             string `json:"url"`
	FormatSelection string `json:"format_selection,omitempty"`
	Priority        *int   `json:"priority,omitempty"`
	MaxRetries      *int   `json:"max_retries,omitempty"`
}

// Options converts the request into [models.TaskOptions].
func (r CreateTaskRequest) Options() models.TaskOptions {
	return models.TaskOptions{FormatSelection: r.FormatSelection, Priority: r.Priority, MaxRetries: r.MaxRetries}
}

// SessionRequest is the body of a session update or browser import.
type SessionRequest struct {
	Cookies string `json:"cookies,omitempty"`
	Method  string `json:"method,omitempty"`
	Browser string `json:"browser,omitempty"`
	Curl    string `json:"curl,omitempty"`
}

// ConcurrencyRequest is the body of a concurrency change.
type ConcurrencyRequest struct {
	Concurrency int `json:"concurrency"`
}
