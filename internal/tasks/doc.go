// Package tasks implements the download scheduler: admission control over the task store.
//
// # Actor
//
// A single goroutine owns every scheduling decision. Commands ([Scheduler.Cancel], [Scheduler.PauseTask],
// [Scheduler.PauseQueue], ...) are posted to it and return as soon as the decision is made; none of them waits
// for a downloader process.
//
// # Admission
//
// After every command, worker outcome and backoff timer tick the actor admits eligible QUEUED tasks while the
// queue is not paused and fewer than the concurrency limit are running. Candidates are ordered by priority
// (highest first), then creation time, then id. A task waiting out a retry backoff is not eligible until its
// next_attempt_at; the actor arms one timer for the earliest such task so no worker slot is held while waiting.
//
// # Signals
//
// Pause and cancel reach a running worker by cancelling its context with a cause
// ([downloader.ErrPauseRequested], [downloader.ErrCancelRequested]). The worker writes the final status.
// A cancel that arrives after a pause was already signalled is applied once the worker has stopped.
package tasks
