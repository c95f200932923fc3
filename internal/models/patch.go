package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/mediaq/internal/shared"
)

// TaskPatch is a partial update to a [DownloadTask]. Nil fields are left untouched.
//
// Expect, when non-empty, makes the patch conditional: it is dropped unless the task's current status is
// one of the listed values. Workers use it so a late progress report cannot overwrite a terminal state.
type TaskPatch struct {
	Expect []TaskStatus

	Status          *TaskStatus
	Progress        *float64
	Speed           *string
	ETA             *string
	DownloadedBytes *int64
	TotalBytes      *int64
	ErrorMessage    *string // "" clears
	Retries         *int
	Title           *string
	Thumbnail       *string
	OutputPath      *string
	NextAttemptAt   *time.Time

	// ResetProgress zeroes progress and byte counters, used when a task is retried from scratch.
	ResetProgress    bool
	// ClearNextAttempt makes a queued task immediately eligible.
	ClearNextAttempt bool
}

// Matches reports whether the Expect guard admits status.
func (p TaskPatch) Matches(status TaskStatus) bool {
	if len(p.Expect) == 0 {
		return true
	}
	for _, s := range p.Expect {
		if s == status {
			return true
		}
	}
	return false
}

// Apply mutates t in place. It returns false without touching t when the Expect guard rejects the
// current status, and [shared.ErrInvalidTransition] when the requested status is unreachable.
//
// Rules:
//   - speed and eta exist only while Processing and are cleared by any status change
//   - progress is clamped to [0,100] and, while the task stays Processing, never decreases
//   - byte counters never decrease while the task stays Processing
//   - started_at and completed_at are written once
//   - retries never exceeds max_retries
func (p TaskPatch) Apply(t *DownloadTask, now time.Time) (bool, error) {
	if !p.Matches(t.Status) {
		return false, nil
	}

	prev := t.Status
	next := prev
	if p.Status != nil {
		next = *p.Status
	}
	changed := next != prev
	if changed && !prev.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, prev, next)
	}
	if p.Retries != nil && (*p.Retries < 0 || *p.Retries > t.MaxRetries) {
		return false, fmt.Errorf("%w: retries %d outside [0,%d]", shared.ErrInvalidTransition, *p.Retries, t.MaxRetries)
	}

	running := prev == StatusProcessing && !changed

	t.Status = next
	if p.ResetProgress {
		t.Progress = 0
		t.DownloadedBytes = nil
		t.TotalBytes = nil
	}
	if p.Progress != nil {
		v := clamp(*p.Progress, 0, 100)
		if !running || v >= t.Progress {
			t.Progress = v
		}
	}
	if p.DownloadedBytes != nil {
		t.DownloadedBytes = monotonic(t.DownloadedBytes, *p.DownloadedBytes, running)
	}
	if p.TotalBytes != nil {
		t.TotalBytes = monotonic(t.TotalBytes, *p.TotalBytes, running)
	}

	if changed {
		t.Speed, t.ETA = "", ""
	}
	if next == StatusProcessing {
		if p.Speed != nil {
			t.Speed = *p.Speed
		}
		if p.ETA != nil {
			t.ETA = *p.ETA
		}
	}

	if p.ErrorMessage != nil {
		if *p.ErrorMessage == "" {
			t.ErrorMessage = nil
		} else {
			t.ErrorMessage = clonePtr(p.ErrorMessage)
		}
	}
	if p.Retries != nil {
		t.Retries = *p.Retries
	}
	if p.Title != nil {
		t.Title = clonePtr(p.Title)
	}
	if p.Thumbnail != nil {
		t.Thumbnail = clonePtr(p.Thumbnail)
	}
	if p.OutputPath != nil {
		t.OutputPath = clonePtr(p.OutputPath)
	}
	if p.ClearNextAttempt {
		t.NextAttemptAt = nil
	}
	if p.NextAttemptAt != nil {
		t.NextAttemptAt = clonePtr(p.NextAttemptAt)
	}

	if changed {
		switch next {
		case StatusProcessing:
			if t.StartedAt == nil {
				t.StartedAt = clonePtr(&now)
			}
			t.NextAttemptAt = nil
		case StatusCompleted:
			t.Progress = 100
			if t.TotalBytes != nil {
				t.DownloadedBytes = clonePtr(t.TotalBytes)
			}
			if t.CompletedAt == nil {
				t.CompletedAt = clonePtr(&now)
			}
			t.ErrorMessage = nil
		}
	}

	t.UpdatedAt = now
	return true, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func monotonic(cur *int64, v int64, running bool) *int64 {
	if v < 0 {
		return cur
	}
	if running && cur != nil && v < *cur {
		return cur
	}
	return &v
}

// Patch constructors for the common transitions.

// ProgressPatch reports downloader progress, guarded to Processing.
func ProgressPatch(progress float64, downloaded, total *int64, speed, eta string) TaskPatch {
	return TaskPatch{
		Expect:          []TaskStatus{StatusProcessing},
		Progress:        &progress,
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		Speed:           &speed,
		ETA:             &eta,
	}
}

// StatusPatch moves a task from one of from to to.
func StatusPatch(to TaskStatus, from ...TaskStatus) TaskPatch {
	return TaskPatch{Expect: from, Status: &to}
}
