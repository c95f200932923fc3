package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mediaq/internal/downloader"
	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
)

var errStopped = fmt.Errorf("%w: scheduler is not running", shared.ErrServiceUnavailable)

// TaskStore is the part of the task store the scheduler needs.
type TaskStore interface {
	Load(ctx context.Context) (int, error)
	Get(id string) (*models.DownloadTask, bool)
	List() []*models.DownloadTask
	Select(keep func(*models.DownloadTask) bool) []*models.DownloadTask
	Upsert(task *models.DownloadTask) error
	Patch(id string, p models.TaskPatch) (*models.DownloadTask, bool, error)
}

// Executor runs one admitted task to an outcome. [downloader.Worker] is the production implementation.
type Executor interface {
	Run(ctx context.Context, taskID string) downloader.Outcome
}

// Config holds the scheduler's limits and the defaults for new tasks.
type Config struct {
	Concurrency int
	Defaults    models.TaskDefaults
}

// ConfigFromQueue builds a [Config] from the queue section of the configuration.
func ConfigFromQueue(q shared.QueueConfig) Config {
	return Config{
		Concurrency: q.Concurrency,
		Defaults:    models.TaskDefaults{Priority: q.DefaultPriority, MaxRetries: q.MaxRetries},
	}
}

type handle struct {
	cancel context.CancelCauseFunc
	signal error
}

type request struct {
	fn    func() error
	reply chan error
}

// Scheduler admits queued tasks to workers. Create it with [New] and call [Scheduler.Start] before issuing
// commands.
type Scheduler struct {
	store    TaskStore
	bus      events.Publisher
	exec     Executor
	logger   *log.Logger
	now      func() time.Time
	defaults models.TaskDefaults

	reqs    chan request
	results chan downloader.Outcome
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stop    context.CancelFunc

	paused      atomic.Bool
	concurrency atomic.Int32

	// owned by the actor goroutine
	ctx    context.Context
	active map[string]*handle
	timer  *time.Timer
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithPaused starts the scheduler with admission paused.
func WithPaused() Option {
	return func(s *Scheduler) { s.paused.Store(true) }
}

// New creates a stopped [Scheduler].
func New(store TaskStore, bus events.Publisher, exec Executor, cfg Config, logger *log.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	s := &Scheduler{
		store:    store,
		bus:      bus,
		exec:     exec,
		logger:   shared.WithLogger(logger, "component", "scheduler"),
		now:      time.Now,
		defaults: cfg.Defaults,
		reqs:     make(chan request),
		results:  make(chan downloader.Outcome, 16),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		active:   make(map[string]*handle),
	}
	s.concurrency.Store(int32(cfg.Concurrency))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores persisted tasks and launches the actor. Tasks interrupted by a previous shutdown are back in
// the queue before the first admission. The scheduler runs until ctx is done or [Scheduler.Stop] is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started.Load() {
		return fmt.Errorf("%w: scheduler already started", shared.ErrInvalidTransition)
	}
	if _, err := s.store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.stop = cancel
	s.started.Store(true)
	go s.loop()

	s.logger.Info("scheduler started", "concurrency", s.Concurrency(), "tasks", len(s.store.List()))
	return nil
}

// Stop cancels running workers, which put their tasks back in the queue, and waits for them to exit.
func (s *Scheduler) Stop() {
	if !s.started.Load() {
		return
	}
	s.stop()
	<-s.done
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer close(s.done)
	defer s.stopTimer()

	for {
		s.admit()

		select {
		case <-s.ctx.Done():
			s.logger.Info("scheduler stopping", "active", len(s.active))
			return
		case r := <-s.reqs:
			r.reply <- r.fn()
		case out := <-s.results:
			s.finished(out)
		case <-s.wake:
		case <-s.timerC():
			s.timer = nil
		}
	}
}

// do runs fn on the actor goroutine and returns its result.
func (s *Scheduler) do(fn func() error) error {
	if !s.started.Load() {
		return errStopped
	}
	r := request{fn: fn, reply: make(chan error, 1)}
	select {
	case s.reqs <- r:
	case <-s.done:
		return errStopped
	}
	return <-r.reply
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) publish(topic events.Topic, id string) {
	s.bus.Publish(events.Event{Topic: topic, TaskID: id})
}

// admit promotes eligible tasks until every slot is taken, then arms the backoff timer.
func (s *Scheduler) admit() {
	if s.ctx.Err() != nil {
		return
	}
	skip := make(map[string]bool)
	for !s.paused.Load() && len(s.active) < int(s.concurrency.Load()) {
		next := s.pick(skip)
		if next == nil {
			break
		}
		skip[next.ID] = true

		task, applied, err := s.store.Patch(next.ID, models.StatusPatch(models.StatusProcessing, models.StatusQueued))
		if err != nil {
			s.logger.Warn("admission write failed", "task_id", next.ID, "error", err)
		}
		if task == nil || task.Status != models.StatusProcessing || (!applied && err == nil) {
			continue
		}
		s.launch(task)
	}
	s.armTimer()
}

func (s *Scheduler) pick(skip map[string]bool) *models.DownloadTask {
	now := s.now()
	var best *models.DownloadTask
	for _, t := range s.store.Select(func(t *models.DownloadTask) bool { return t.Eligible(now) }) {
		if _, running := s.active[t.ID]; running || skip[t.ID] {
			continue
		}
		if best == nil || t.AdmitsBefore(best) {
			best = t
		}
	}
	return best
}

func (s *Scheduler) launch(task *models.DownloadTask) {
	ctx, cancel := context.WithCancelCause(s.ctx)
	s.active[task.ID] = &handle{cancel: cancel}
	s.logger.Info("task admitted", "task_id", task.ID, "priority", task.Priority, "attempt", task.Retries+1)
	s.publish(events.TopicStarted, task.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out := s.exec.Run(ctx, task.ID)
		cancel(nil)
		if out.TaskID == "" {
			out.TaskID = task.ID
		}
		select {
		case s.results <- out:
		case <-s.done:
		}
	}()
}

func (s *Scheduler) finished(out downloader.Outcome) {
	h, ok := s.active[out.TaskID]
	if !ok {
		return
	}
	delete(s.active, out.TaskID)

	logger := shared.WithLogger(s.logger, "task_id", out.TaskID, "status", out.Status)
	if out.Err != nil {
		logger.Debug("worker finished", "error", out.Err)
	} else {
		logger.Debug("worker finished")
	}

	// A cancel that lost the race against an earlier pause signal.
	if errors.Is(h.signal, downloader.ErrCancelRequested) && (out.Status == models.StatusPaused || out.Status == models.StatusQueued) {
		if err := s.cancelIdle(out.TaskID, out.Status); err != nil {
			logger.Warn("deferred cancel failed", "error", err)
		}
	}
}

func (s *Scheduler) timerC() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timer.C
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// armTimer schedules a wake-up for the earliest queued task still waiting out its backoff.
func (s *Scheduler) armTimer() {
	s.stopTimer()
	if s.paused.Load() || s.ctx.Err() != nil {
		return
	}

	now := s.now()
	var earliest *time.Time
	for _, t := range s.store.Select(func(t *models.DownloadTask) bool {
		return t.Status == models.StatusQueued && t.NextAttemptAt != nil && t.NextAttemptAt.After(now)
	}) {
		if earliest == nil || t.NextAttemptAt.Before(*earliest) {
			earliest = t.NextAttemptAt
		}
	}
	if earliest != nil {
		s.timer = time.NewTimer(earliest.Sub(now))
	}
}

// Submit validates the request and enqueues a new task. It never waits for admission.
func (s *Scheduler) Submit(rawURL string, opts models.TaskOptions) (*models.DownloadTask, error) {
	task, err := models.NewDownloadTask(rawURL, opts, s.defaults, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Upsert(task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	s.logger.Info("task queued", "task_id", task.ID, "url", task.URL, "priority", task.Priority)
	s.publish(events.TopicQueued, task.ID)
	s.notify()
	return task, nil
}

func (s *Scheduler) lookup(id string) (*models.DownloadTask, error) {
	task, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	return task, nil
}

// Cancel stops a task. Queued and paused tasks are cancelled at once; a running task's worker is signalled
// and finalizes the transition itself.
func (s *Scheduler) Cancel(id string) error {
	return s.do(func() error {
		task, err := s.lookup(id)
		if err != nil {
			return err
		}

		switch task.Status {
		case models.StatusProcessing:
			if h, ok := s.active[id]; ok {
				h.signal = downloader.ErrCancelRequested
				h.cancel(downloader.ErrCancelRequested)
				s.logger.Info("cancel signalled", "task_id", id)
				return nil
			}
			return fmt.Errorf("%w: task %s has no worker", shared.ErrInvalidTransition, id)
		case models.StatusQueued, models.StatusPaused:
			return s.cancelIdle(id, task.Status)
		default:
			return fmt.Errorf("%w: cannot cancel a %s task", shared.ErrInvalidTransition, task.Status)
		}
	})
}

func (s *Scheduler) cancelIdle(id string, from models.TaskStatus) error {
	task, applied, err := s.store.Patch(id, models.StatusPatch(models.StatusCancelled, from))
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: task %s is no longer %s", shared.ErrInvalidTransition, id, from)
	}
	if from == models.StatusPaused && task.OutputPath != nil {
		downloader.RemovePartials(s.logger, *task.OutputPath)
	}
	s.logger.Info("task cancelled", "task_id", id, "from", from)
	s.publish(events.TopicCancelled, id)
	return nil
}

// PauseTask signals a running task to stop while keeping its partial download.
func (s *Scheduler) PauseTask(id string) error {
	return s.do(func() error {
		task, err := s.lookup(id)
		if err != nil {
			return err
		}
		h, ok := s.active[id]
		if task.Status != models.StatusProcessing || !ok {
			return fmt.Errorf("%w: only a processing task can be paused, task is %s", shared.ErrInvalidTransition, task.Status)
		}
		if h.signal != nil {
			return fmt.Errorf("%w: task %s is already stopping", shared.ErrInvalidTransition, id)
		}
		h.signal = downloader.ErrPauseRequested
		h.cancel(downloader.ErrPauseRequested)
		s.logger.Info("pause signalled", "task_id", id)
		return nil
	})
}

// ResumeTask puts a paused task back in the queue. It is admitted like any other queued task.
func (s *Scheduler) ResumeTask(id string) error {
	return s.requeue(id, []models.TaskStatus{models.StatusPaused}, false)
}

// Retry re-queues a failed or cancelled task from scratch. The retry counter is left as it is.
func (s *Scheduler) Retry(id string) error {
	return s.requeue(id, []models.TaskStatus{models.StatusFailed, models.StatusCancelled}, true)
}

func (s *Scheduler) requeue(id string, from []models.TaskStatus, reset bool) error {
	return s.do(func() error {
		task, err := s.lookup(id)
		if err != nil {
			return err
		}

		p := models.StatusPatch(models.StatusQueued, from...)
		p.ErrorMessage = models.Ptr("")
		p.ClearNextAttempt = true
		p.ResetProgress = reset
		if !p.Matches(task.Status) {
			return fmt.Errorf("%w: task is %s, expected one of %v", shared.ErrInvalidTransition, task.Status, from)
		}

		if _, applied, err := s.store.Patch(id, p); err != nil {
			return err
		} else if !applied {
			return fmt.Errorf("%w: task %s changed state", shared.ErrInvalidTransition, id)
		}
		s.logger.Info("task re-queued", "task_id", id, "from", task.Status, "retries", task.Retries)
		s.publish(events.TopicQueued, id)
		return nil
	})
}

// PauseQueue stops admission. Running tasks are not affected.
func (s *Scheduler) PauseQueue() error {
	return s.do(func() error {
		if !s.paused.Swap(true) {
			s.logger.Info("queue paused")
		}
		return nil
	})
}

// ResumeQueue re-enables admission.
func (s *Scheduler) ResumeQueue() error {
	return s.do(func() error {
		if s.paused.Swap(false) {
			s.logger.Info("queue resumed")
		}
		return nil
	})
}

// SetConcurrency changes the number of parallel downloads. Lowering it never interrupts running tasks.
func (s *Scheduler) SetConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1", shared.ErrInvalidRequest)
	}
	return s.do(func() error {
		s.concurrency.Store(int32(n))
		s.logger.Info("concurrency changed", "concurrency", n)
		return nil
	})
}

// IsPaused reports the queue pause flag.
func (s *Scheduler) IsPaused() bool { return s.paused.Load() }

// Concurrency reports the current limit.
func (s *Scheduler) Concurrency() int { return int(s.concurrency.Load()) }

// Status returns the queue snapshot.
func (s *Scheduler) Status() models.QueueStatus {
	return models.QueueStatus{
		IsPaused:    s.IsPaused(),
		Concurrency: s.Concurrency(),
		Tasks:       s.store.List(),
	}
}

// Running returns the ids owned by a worker right now.
func (s *Scheduler) Running() []string {
	var ids []string
	_ = s.do(func() error {
		for id := range s.active {
			ids = append(ids, id)
		}
		return nil
	})
	return ids
}
