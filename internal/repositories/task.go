package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
)

const taskColumns = `id, url, format_selection, status, priority, progress, speed, eta, downloaded_bytes, total_bytes,
	error_message, retries, max_retries, title, thumbnail, output_path, next_attempt_at,
	created_at, started_at, completed_at, updated_at`

// TaskRepository implements [models.TaskRepository] for [models.DownloadTask] persistence.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new [TaskRepository] with the given database connection
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Save inserts the task or replaces every mutable column of an existing row.
func (r *TaskRepository) Save(task *models.DownloadTask) error {
	query := `
		INSERT INTO download_tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			priority = excluded.priority,
			progress = excluded.progress,
			speed = excluded.speed,
			eta = excluded.eta,
			downloaded_bytes = excluded.downloaded_bytes,
			total_bytes = excluded.total_bytes,
			error_message = excluded.error_message,
			retries = excluded.retries,
			max_retries = excluded.max_retries,
			title = excluded.title,
			thumbnail = excluded.thumbnail,
			output_path = excluded.output_path,
			next_attempt_at = excluded.next_attempt_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		task.ID, task.URL, task.FormatSelection, string(task.Status), task.Priority, task.Progress, task.Speed, task.ETA,
		nullInt64(task.DownloadedBytes), nullInt64(task.TotalBytes), nullString(task.ErrorMessage),
		task.Retries, task.MaxRetries, nullString(task.Title), nullString(task.Thumbnail), nullString(task.OutputPath),
		nullTime(task.NextAttemptAt), task.CreatedAt.UTC(), nullTime(task.StartedAt), nullTime(task.CompletedAt),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

// Get retrieves a task by ID
func (r *TaskRepository) Get(id string) (*models.DownloadTask, error) {
	row := r.db.QueryRow(`SELECT `+taskColumns+` FROM download_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return task, nil
}

// List returns every task, oldest first.
func (r *TaskRepository) List() ([]*models.DownloadTask, error) {
	rows, err := r.db.Query(`SELECT ` + taskColumns + ` FROM download_tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.DownloadTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// Delete removes a task row.
func (r *TaskRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM download_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	return nil
}

func scanTask(s rowScanner) (*models.DownloadTask, error) {
	var (
		t                                    models.DownloadTask
		status                               string
		downloaded, total                    sql.NullInt64
		errMsg, title, thumbnail, outputPath sql.NullString
		nextAttempt, startedAt, completedAt  sql.NullTime
	)

	err := s.Scan(
		&t.ID, &t.URL, &t.FormatSelection, &status, &t.Priority, &t.Progress, &t.Speed, &t.ETA,
		&downloaded, &total, &errMsg, &t.Retries, &t.MaxRetries, &title, &thumbnail, &outputPath,
		&nextAttempt, &t.CreatedAt, &startedAt, &completedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.DownloadedBytes = int64Ptr(downloaded)
	t.TotalBytes = int64Ptr(total)
	t.ErrorMessage = stringPtr(errMsg)
	t.Title = stringPtr(title)
	t.Thumbnail = stringPtr(thumbnail)
	t.OutputPath = stringPtr(outputPath)
	t.NextAttemptAt = timePtr(nextAttempt)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}
