package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
	"golang.org/x/time/rate"
)

// Causes passed to the worker context's cancel function by the scheduler.
var (
	ErrCancelRequested = errors.New("cancel requested")
	ErrPauseRequested  = errors.New("pause requested")
)

const (
	outputTemplate = "%(title)s [%(id)s].%(ext)s"
	stderrTailSize = 20
	metadataWait   = 30 * time.Second
)

// authMarkers are lowercase stderr fragments meaning the platform wants a logged-in session.
var authMarkers = []string{
	"sign in to confirm",
	"login required",
	"log in to",
	"private video",
	"members-only",
	"members only",
	"confirm your age",
	"age-restricted",
	"use --cookies",
	"http error 401",
}

// TaskStore is the subset of the task store a worker writes through.
type TaskStore interface {
	Get(id string) (*models.DownloadTask, bool)
	Patch(id string, p models.TaskPatch) (*models.DownloadTask, bool, error)
}

// SessionSource supplies platform cookies for a URL and receives sign-in failures.
type SessionSource interface {
	CookiesFor(rawURL string) (platform models.Platform, cookies string, ok bool)
	ReportAuthFailure(platformID string)
}

// Options are the worker's tunables, usually taken from [shared.QueueConfig] and [shared.DownloaderConfig].
type Options struct {
	OutputDir        string
	ExtraArgs        []string
	Watchdog         time.Duration
	ProgressInterval time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
}

// OptionsFromConfig builds [Options] from the loaded configuration.
func OptionsFromConfig(cfg *shared.Config) Options {
	return Options{
		OutputDir:        cfg.Downloader.OutputDir,
		ExtraArgs:        cfg.Downloader.ExtraArgs,
		Watchdog:         cfg.Queue.Watchdog.Duration,
		ProgressInterval: cfg.Queue.ProgressInterval.Duration,
		BackoffBase:      cfg.Queue.BackoffBase.Duration,
		BackoffMax:       cfg.Queue.BackoffMax.Duration,
	}
}

// Outcome reports how a run ended. Status is the task status the worker left behind.
type Outcome struct {
	TaskID string
	Status models.TaskStatus
	Err    error
}

// Worker drives one downloader process for one PROCESSING task. A single Worker value is safe to reuse
// across tasks; all per-run state lives in [Worker.Run].
type Worker struct {
	store    TaskStore
	bus      events.Publisher
	runner   Runner
	sessions SessionSource
	metadata *Fetcher
	opts     Options
	logger   *log.Logger
	now      func() time.Time
}

// WorkerOption configures a [Worker].
type WorkerOption func(*Worker)

// WithSessions enables cookie injection.
func WithSessions(s SessionSource) WorkerOption {
	return func(w *Worker) { w.sessions = s }
}

// WithMetadata enables title and thumbnail lookup.
func WithMetadata(f *Fetcher) WorkerOption {
	return func(w *Worker) { w.metadata = f }
}

// WithWorkerClock overrides time.Now, for tests.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// NewWorker creates a [Worker].
func NewWorker(store TaskStore, bus events.Publisher, runner Runner, opts Options, logger *log.Logger, extra ...WorkerOption) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Watchdog <= 0 {
		opts.Watchdog = 2 * time.Minute
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 5 * time.Second
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = opts.BackoffBase
	}
	w := &Worker{
		store:  store,
		bus:    bus,
		runner: runner,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range extra {
		opt(w)
	}
	return w
}

// Backoff returns the delay before attempt number retries (1-based): base * 2^(retries-1), capped.
func (w *Worker) Backoff(retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}
	d := w.opts.BackoffBase
	for i := 1; i < retries; i++ {
		d *= 2
		if d >= w.opts.BackoffMax {
			return w.opts.BackoffMax
		}
	}
	return min(d, w.opts.BackoffMax)
}

// Args builds the downloader command line for task.
func (w *Worker) Args(task *models.DownloadTask, cookieFile string) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-colors",
		"-c",
		"-o", filepath.Join(w.opts.OutputDir, outputTemplate),
	}
	if task.FormatSelection != "" {
		args = append(args, "-f", task.FormatSelection)
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	args = append(args, w.opts.ExtraArgs...)
	return append(args, task.URL)
}

// run holds the per-attempt state.
type run struct {
	task     *models.DownloadTask
	logger   *log.Logger
	limiter  *rate.Limiter
	outputs  []string
	tail     []string
	platform *models.Platform
}

// Run executes the download for taskID until the process exits or ctx is cancelled. The scheduler signals
// pause and cancel by cancelling ctx with [ErrPauseRequested] or [ErrCancelRequested] as the cause; any other
// cancellation is a shutdown and puts the task back in the queue without consuming a retry.
func (w *Worker) Run(ctx context.Context, taskID string) Outcome {
	task, ok := w.store.Get(taskID)
	if !ok {
		return Outcome{TaskID: taskID, Err: fmt.Errorf("%w: task %s", shared.ErrNotFound, taskID)}
	}
	if task.Status != models.StatusProcessing {
		return Outcome{TaskID: taskID, Status: task.Status, Err: fmt.Errorf("%w: task %s is %s", shared.ErrInvalidTransition, taskID, task.Status)}
	}

	r := &run{
		task:    task,
		logger:  shared.WithLogger(w.logger, "task_id", taskID),
		limiter: rate.NewLimiter(rate.Every(max(w.opts.ProgressInterval, time.Millisecond)), 1),
	}
	if task.OutputPath != nil {
		r.outputs = append(r.outputs, *task.OutputPath)
	}

	cookieFile, err := w.writeCookies(r)
	if err != nil {
		r.logger.Warn("could not prepare cookie file, continuing without session", "error", err)
	}
	if cookieFile != "" {
		defer os.Remove(cookieFile)
	}

	if w.metadata != nil && task.Title == nil {
		stop := w.fetchMetadata(ctx, r, cookieFile)
		defer stop()
	}

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)
	watchdog := time.AfterFunc(w.opts.Watchdog, func() {
		cancelRun(fmt.Errorf("%w: no output for %s", shared.ErrWatchdog, w.opts.Watchdog))
	})

	args := w.Args(task, cookieFile)
	r.logger.Debug("starting downloader", "args", len(args), "cookies", cookieFile != "")

	err = w.runner.Stream(runCtx, args, func(stream Stream, line string) {
		watchdog.Reset(w.opts.Watchdog)
		if stream == Stderr {
			r.remember(line)
		}
		w.handleLine(r, line)
	})
	watchdog.Stop()

	// A clean exit completes even when a signal arrived after the process finished.
	if err == nil {
		return w.complete(r)
	}
	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		switch {
		case errors.Is(cause, ErrCancelRequested):
			return w.cancelled(r)
		case errors.Is(cause, ErrPauseRequested):
			return w.paused(r)
		case errors.Is(cause, shared.ErrWatchdog):
			err = cause
		default:
			return w.interrupted(r)
		}
	}
	return w.failed(r, err)
}

func (r *run) remember(line string) {
	r.tail = append(r.tail, line)
	if len(r.tail) > stderrTailSize {
		r.tail = r.tail[len(r.tail)-stderrTailSize:]
	}
}

func (w *Worker) handleLine(r *run, raw string) {
	line := ParseLine(raw)
	switch line.Kind {
	case LineProgress:
		if line.Progress < 100 && !r.limiter.Allow() {
			return
		}
		w.progress(r, models.ProgressPatch(line.Progress, line.DownloadedBytes, line.TotalBytes, line.Speed, line.ETA))
	case LineDestination, LineMerged:
		r.outputs = append(r.outputs, line.Path)
		w.patch(r, models.TaskPatch{Expect: []models.TaskStatus{models.StatusProcessing}, OutputPath: &line.Path})
	case LineAlreadyDownloaded:
		r.outputs = append(r.outputs, line.Path)
		p := models.ProgressPatch(100, nil, nil, "", "")
		p.OutputPath = &line.Path
		w.progress(r, p)
	}
}

func (w *Worker) progress(r *run, p models.TaskPatch) {
	task, applied := w.patch(r, p)
	if !applied {
		return
	}
	w.bus.Publish(events.Event{
		Topic:  events.TopicProgress,
		TaskID: task.ID,
		Progress: &events.Progress{
			TaskID:          task.ID,
			Progress:        task.Progress,
			Speed:           task.Speed,
			ETA:             task.ETA,
			DownloadedBytes: task.DownloadedBytes,
			TotalBytes:      task.TotalBytes,
		},
	})
}

func (w *Worker) patch(r *run, p models.TaskPatch) (*models.DownloadTask, bool) {
	task, applied, err := w.store.Patch(r.task.ID, p)
	if err != nil {
		r.logger.Warn("task patch failed", "error", err)
	}
	if task == nil {
		return nil, false
	}
	return task, applied
}

// finish applies a status patch and publishes topic when it lands. The returned status is whatever the
// store holds afterwards, so a racing command still wins.
func (w *Worker) finish(r *run, p models.TaskPatch, topic events.Topic, cause error) Outcome {
	task, applied := w.patch(r, p)
	out := Outcome{TaskID: r.task.ID, Err: cause}
	if task != nil {
		out.Status = task.Status
	}
	if applied {
		w.bus.Publish(events.Event{Topic: topic, TaskID: r.task.ID})
	}
	return out
}

func (w *Worker) complete(r *run) Outcome {
	r.logger.Info("download completed")
	p := models.StatusPatch(models.StatusCompleted, models.StatusProcessing)
	p.ErrorMessage = models.Ptr("")
	return w.finish(r, p, events.TopicCompleted, nil)
}

func (w *Worker) cancelled(r *run) Outcome {
	r.logger.Info("download cancelled")
	out := w.finish(r, models.StatusPatch(models.StatusCancelled, models.StatusProcessing), events.TopicCancelled, nil)
	if out.Status == models.StatusCancelled {
		RemovePartials(r.logger, r.outputs...)
	}
	return out
}

func (w *Worker) paused(r *run) Outcome {
	r.logger.Info("download paused")
	return w.finish(r, models.StatusPatch(models.StatusPaused, models.StatusProcessing), events.TopicPaused, nil)
}

func (w *Worker) interrupted(r *run) Outcome {
	r.logger.Info("download interrupted by shutdown, returning to queue")
	return w.finish(r, models.StatusPatch(models.StatusQueued, models.StatusProcessing), events.TopicQueued, nil)
}

func (w *Worker) failed(r *run, err error) Outcome {
	detail := strings.Join(r.tail, "\n")
	if requiresAuth(detail) {
		name := "the platform"
		if p, ok := models.PlatformForURL(r.task.URL); ok {
			name = p.Name
		}
		if r.platform != nil && w.sessions != nil {
			w.sessions.ReportAuthFailure(r.platform.ID)
		}
		msg := fmt.Sprintf("Sign in required: connect your %s account in Settings and retry", name)
		r.logger.Warn("download requires authentication", "platform", name)
		return w.fail(r, msg, fmt.Errorf("%w: %s", shared.ErrAuthRequired, name))
	}

	msg := errorText(err, r.tail)
	if !shared.IsTransient(err) {
		r.logger.Error("download failed", "error", err)
		return w.fail(r, msg, err)
	}

	current, ok := w.store.Get(r.task.ID)
	if !ok {
		return Outcome{TaskID: r.task.ID, Err: err}
	}
	if current.Retries >= current.MaxRetries {
		r.logger.Error("download failed, retries exhausted", "retries", current.Retries, "error", err)
		return w.fail(r, msg, err)
	}

	retries := current.Retries + 1
	delay := w.Backoff(retries)
	next := w.now().Add(delay)
	r.logger.Warn("download failed, will retry", "attempt", retries, "max_retries", current.MaxRetries, "backoff", delay, "error", err)

	p := models.StatusPatch(models.StatusQueued, models.StatusProcessing)
	p.Retries = &retries
	p.NextAttemptAt = &next
	p.ErrorMessage = models.Ptr("")
	return w.finish(r, p, events.TopicQueued, err)
}

func (w *Worker) fail(r *run, msg string, err error) Outcome {
	p := models.StatusPatch(models.StatusFailed, models.StatusProcessing)
	p.ErrorMessage = &msg
	return w.finish(r, p, events.TopicFailed, err)
}

func (w *Worker) writeCookies(r *run) (string, error) {
	if w.sessions == nil {
		return "", nil
	}
	platform, cookies, ok := w.sessions.CookiesFor(r.task.URL)
	if !ok || cookies == "" {
		return "", nil
	}
	r.platform = &platform

	path := filepath.Join(os.TempDir(), "mediaq-cookies-"+shared.GenerateID()+".txt")
	if err := os.WriteFile(path, []byte(cookies), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// fetchMetadata looks up title and thumbnail in the background. The returned func cancels the lookup and
// waits for it, so it must run before the cookie file is removed.
func (w *Worker) fetchMetadata(ctx context.Context, r *run, cookieFile string) func() {
	ctx, cancel := context.WithTimeout(ctx, metadataWait)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		meta, err := w.metadata.Fetch(ctx, r.task.URL, cookieFile)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Debug("metadata lookup failed", "error", err)
			}
			return
		}
		p := models.TaskPatch{Expect: []models.TaskStatus{models.StatusProcessing}}
		if meta.Title != "" {
			p.Title = &meta.Title
		}
		if meta.Thumbnail != "" {
			p.Thumbnail = &meta.Thumbnail
		}
		if p.Title != nil || p.Thumbnail != nil {
			if _, _, err := w.store.Patch(r.task.ID, p); err != nil {
				r.logger.Debug("metadata patch failed", "error", err)
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func requiresAuth(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range authMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// errorText prefers the downloader's own ERROR lines over the exit status.
func errorText(err error, tail []string) string {
	for i := len(tail) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(tail[i]); strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if len(tail) > 0 {
		if last := strings.TrimSpace(tail[len(tail)-1]); last != "" {
			return last
		}
	}
	if err != nil {
		return err.Error()
	}
	return "download failed"
}

// RemovePartials deletes the downloader's output files and their resume artifacts.
func RemovePartials(logger *log.Logger, paths ...string) {
	seen := make(map[string]bool)
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		for _, candidate := range []string{p, p + ".part", p + ".ytdl"} {
			if err := os.Remove(candidate); err != nil && !errors.Is(err, os.ErrNotExist) && logger != nil {
				logger.Warn("failed to remove partial file", "path", candidate, "error", err)
			}
		}
	}
}
