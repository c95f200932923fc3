package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/mediaq/internal/downloader"
	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/sessions"
	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/desertthunder/mediaq/internal/tasks"
)

// Local implements [Service] in-process over a running scheduler.
type Local struct {
	scheduler *tasks.Scheduler
	sessions  *sessions.Store
	bus       *events.Bus

	runner   downloader.Runner
	binary   string
	updating sync.Mutex
}

var _ Service = (*Local)(nil)

// NewLocal creates a [Local] service. The scheduler must already be started.
func NewLocal(scheduler *tasks.Scheduler, sessions *sessions.Store, bus *events.Bus) *Local {
	return &Local{scheduler: scheduler, sessions: sessions, bus: bus}
}

// WithDownloader enables the downloader status and self-update commands.
func (l *Local) WithDownloader(runner downloader.Runner, binary string) *Local {
	l.runner = runner
	l.binary = binary
	return l
}

func (l *Local) CreateDownloadTask(_ context.Context, req CreateTaskRequest) (*models.DownloadTask, error) {
	return l.scheduler.Submit(req.URL, req.Options())
}

func (l *Local) CancelDownloadTask(_ context.Context, id string) error {
	return l.scheduler.Cancel(id)
}

func (l *Local) PauseDownloadTask(_ context.Context, id string) error {
	return l.scheduler.PauseTask(id)
}

func (l *Local) ResumeDownloadTask(_ context.Context, id string) error {
	return l.scheduler.ResumeTask(id)
}

func (l *Local) RetryDownloadTask(_ context.Context, id string) error {
	return l.scheduler.Retry(id)
}

func (l *Local) PauseQueue(context.Context) error {
	return l.scheduler.PauseQueue()
}

func (l *Local) ResumeQueue(context.Context) error {
	return l.scheduler.ResumeQueue()
}

func (l *Local) SetConcurrency(_ context.Context, n int) error {
	return l.scheduler.SetConcurrency(n)
}

func (l *Local) GetQueueStatus(context.Context) (*models.QueueStatus, error) {
	status := l.scheduler.Status()
	return &status, nil
}

func (l *Local) GetAuthStatus(context.Context) ([]*models.PlatformSession, error) {
	return l.sessions.GetStatus()
}

func (l *Local) UpdateSession(ctx context.Context, platformID, cookies, method string) (*models.PlatformSession, error) {
	return l.sessions.Update(ctx, platformID, cookies, method)
}

func (l *Local) ImportCurl(ctx context.Context, platformID, curl string) (*models.PlatformSession, error) {
	return l.sessions.ImportCurl(ctx, platformID, curl)
}

func (l *Local) DeleteSession(_ context.Context, platformID string) error {
	return l.sessions.Delete(platformID)
}

func (l *Local) OpenLoginWindow(_ context.Context, platformID string) error {
	return l.sessions.OpenLoginWindow(platformID)
}

func (l *Local) CheckLogin(ctx context.Context, platformID string) (*models.PlatformSession, error) {
	return l.sessions.CheckLogin(ctx, platformID)
}

func (l *Local) ImportFromBrowser(ctx context.Context, platformID, browser string) (*models.PlatformSession, error) {
	return l.sessions.ImportFromBrowser(ctx, platformID, browser)
}

// Subscribe registers on the bus and closes the subscription when ctx is done. A context that can never
// be done is rejected.
func (l *Local) Subscribe(ctx context.Context, topics ...events.Topic) (<-chan events.Event, error) {
	if ctx.Done() == nil {
		return nil, fmt.Errorf("%w: subscribe needs a cancellable context", shared.ErrInvalidRequest)
	}
	sub := l.bus.Subscribe(events.DefaultBuffer, topics...)
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub.C(), nil
}

func (l *Local) GetDownloaderStatus(ctx context.Context) (*models.DownloaderInfo, error) {
	if l.runner == nil {
		return nil, fmt.Errorf("%w: downloader not configured", shared.ErrServiceUnavailable)
	}
	info := downloader.Status(ctx, l.runner, l.binary)
	return &info, nil
}

// UpdateDownloader runs one self-update at a time.
func (l *Local) UpdateDownloader(ctx context.Context) (*models.DownloaderInfo, error) {
	if l.runner == nil {
		return nil, fmt.Errorf("%w: downloader not configured", shared.ErrServiceUnavailable)
	}
	l.updating.Lock()
	defer l.updating.Unlock()

	info, err := downloader.Update(ctx, l.runner, l.binary)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
