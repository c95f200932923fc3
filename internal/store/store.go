// Package store holds the authoritative in-memory set of download tasks.
//
// Every mutation goes through [Store.Patch] or [Store.Upsert]. Patches on one task id are serialized by a
// per-task lock, patches on different ids proceed in parallel, and callers only ever see copies.
// Successful writes are persisted through a [Persister] before the lock is released, so the database sees
// each task's writes in the same order as memory does.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mediaq/internal/models"
)

// Persister is the write-through target, usually a repositories.TaskRepository.
type Persister interface {
	Save(task *models.DownloadTask) error
	List() ([]*models.DownloadTask, error)
}

type entry struct {
	mu   sync.Mutex
	task *models.DownloadTask
}

// Store is the task repository shared by the scheduler, workers and the command façade.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	persist Persister
	logger  *log.Logger
	now     func() time.Time
}

// Option configures a [Store].
type Option func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a [Store]. persist may be nil for a memory-only store.
func New(persist Persister, logger *log.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{
		entries: make(map[string]*entry),
		persist: persist,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fills the store from the persister. Tasks left PROCESSING by a previous run have no worker
// anymore and are put back to QUEUED. It returns the number of recovered tasks.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persist == nil {
		return 0, nil
	}

	tasks, err := s.persist.List()
	if err != nil {
		return 0, err
	}

	recovered := 0
	now := s.now()
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		if t.Status == models.StatusProcessing {
			if _, err := models.StatusPatch(models.StatusQueued).Apply(t, now); err == nil {
				recovered++
				if err := s.persist.Save(t); err != nil {
					s.logger.Warn("failed to persist recovered task", "task_id", t.ID, "error", err)
				}
			}
		}

		s.mu.Lock()
		s.entries[t.ID] = &entry{task: t}
		s.mu.Unlock()
	}

	if recovered > 0 {
		s.logger.Info("recovered interrupted tasks", "count", recovered)
	}
	return recovered, nil
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Get returns a copy of the task.
func (s *Store) Get(id string) (*models.DownloadTask, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), true
}

// List returns copies of all tasks, oldest first.
func (s *Store) List() []*models.DownloadTask {
	return s.Select(nil)
}

// Select returns copies of the tasks accepted by keep (all when nil), oldest first.
func (s *Store) Select(keep func(*models.DownloadTask) bool) []*models.DownloadTask {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*models.DownloadTask, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if keep == nil || keep(e.task) {
			out = append(out, e.task.Clone())
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Upsert inserts task or replaces the stored record wholesale.
func (s *Store) Upsert(task *models.DownloadTask) error {
	c := task.Clone()

	s.mu.Lock()
	e, ok := s.entries[c.ID]
	if !ok {
		e = &entry{}
		s.entries[c.ID] = e
	}
	e.mu.Lock()
	s.mu.Unlock()
	defer e.mu.Unlock()

	e.task = c
	return s.save(c)
}

// Patch applies p to the task atomically. It is a silent no-op returning (nil, false, nil) when id is
// unknown, and returns the current copy with applied=false when p's status guard rejects the task.
func (s *Store) Patch(id string, p models.TaskPatch) (*models.DownloadTask, bool, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.task.Clone()
	applied, err := p.Apply(next, s.now())
	if err != nil {
		return e.task.Clone(), false, err
	}
	if !applied {
		return next, false, nil
	}

	e.task = next
	return next.Clone(), true, s.save(next)
}

func (s *Store) save(t *models.DownloadTask) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.Save(t); err != nil {
		s.logger.Error("failed to persist task", "task_id", t.ID, "status", t.Status, "error", err)
		return err
	}
	return nil
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
