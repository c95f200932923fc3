package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/mediaq/internal/formatter"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/services"
	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/urfave/cli/v3"
)

// Add queues a URL and prints the new task.
func (r *Runner) Add(ctx context.Context, cmd *cli.Command) error {
	rawURL := cmd.StringArg("url")
	if rawURL == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}

	req := services.CreateTaskRequest{URL: rawURL, FormatSelection: cmd.String("format")}
	if cmd.IsSet("priority") {
		req.Priority = models.Ptr(cmd.Int("priority"))
	}
	if cmd.IsSet("max-retries") {
		req.MaxRetries = models.Ptr(cmd.Int("max-retries"))
	}

	task, err := r.service().CreateDownloadTask(ctx, req)
	if err != nil {
		return err
	}
	r.logger.Debug("task created", "task_id", task.ID)

	if cmd.Bool("json") {
		return r.writeJSON(task, true)
	}
	return r.writePlain("✓ Queued %s (%s)\n", formatter.ShortID(task.ID), task.URL)
}

// List prints the queue as a table, CSV or JSON.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	status, err := r.service().GetQueueStatus(ctx)
	if err != nil {
		return err
	}

	if filter := cmd.String("status"); filter != "" {
		st, err := models.ParseTaskStatus(filter)
		if err != nil {
			return err
		}
		kept := status.Tasks[:0]
		for _, t := range status.Tasks {
			if t.Status == st {
				kept = append(kept, t)
			}
		}
		status.Tasks = kept
	}

	switch {
	case cmd.Bool("json"):
		return r.writeJSON(status, true)
	case cmd.Bool("csv"):
		data, err := formatter.QueueCSV(status.Tasks)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	}
	return r.writeBytes(formatter.QueueTable(status))
}

// Show prints one task.
func (r *Runner) Show(ctx context.Context, cmd *cli.Command) error {
	task, err := r.findTask(ctx, cmd.StringArg("id"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(task, true)
	}
	return r.writeBytes(formatter.TaskText(task))
}

// Cancel cancels a task.
func (r *Runner) Cancel(ctx context.Context, cmd *cli.Command) error {
	return r.taskAction(ctx, cmd, "Cancelled", r.service().CancelDownloadTask)
}

// Pause pauses a running task.
func (r *Runner) Pause(ctx context.Context, cmd *cli.Command) error {
	return r.taskAction(ctx, cmd, "Paused", r.service().PauseDownloadTask)
}

// Resume requeues a paused task.
func (r *Runner) Resume(ctx context.Context, cmd *cli.Command) error {
	return r.taskAction(ctx, cmd, "Resumed", r.service().ResumeDownloadTask)
}

// Retry requeues a failed or cancelled task.
func (r *Runner) Retry(ctx context.Context, cmd *cli.Command) error {
	return r.taskAction(ctx, cmd, "Requeued", r.service().RetryDownloadTask)
}

func (r *Runner) taskAction(ctx context.Context, cmd *cli.Command, done string, fn func(context.Context, string) error) error {
	id, err := r.resolveID(ctx, cmd.StringArg("id"))
	if err != nil {
		return err
	}
	if err := fn(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ %s %s\n", done, formatter.ShortID(id))
}

// resolveID expands a unique id prefix, as printed by `ls`, into the full task id. An id that matches nothing is
// passed through so the server reports it.
func (r *Runner) resolveID(ctx context.Context, prefix string) (string, error) {
	task, err := r.findTask(ctx, prefix)
	switch {
	case err == nil:
		return task.ID, nil
	case errors.Is(err, shared.ErrNotFound):
		return prefix, nil
	}
	return "", err
}

func (r *Runner) findTask(ctx context.Context, prefix string) (*models.DownloadTask, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}

	status, err := r.service().GetQueueStatus(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*models.DownloadTask
	for _, t := range status.Tasks {
		if t.ID == prefix {
			return t, nil
		}
		if strings.HasPrefix(t.ID, prefix) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: task %s", shared.ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	}
	return nil, fmt.Errorf("%w: %q matches %d tasks", shared.ErrInvalidRequest, prefix, len(matches))
}

// QueuePause stops admission.
func (r *Runner) QueuePause(ctx context.Context, cmd *cli.Command) error {
	if err := r.service().PauseQueue(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Queue paused\n")
}

// QueueResume restarts admission.
func (r *Runner) QueueResume(ctx context.Context, cmd *cli.Command) error {
	if err := r.service().ResumeQueue(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Queue resumed\n")
}

// QueueConcurrency changes the number of parallel downloads.
func (r *Runner) QueueConcurrency(ctx context.Context, cmd *cli.Command) error {
	n := cmd.IntArg("n")
	if n < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1", shared.ErrInvalidRequest)
	}
	if err := r.service().SetConcurrency(ctx, n); err != nil {
		return err
	}
	return r.writePlain("✓ Concurrency set to %d\n", n)
}
