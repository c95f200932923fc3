package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/desertthunder/mediaq/internal/shared"
)

const (
	DefaultPriority   = 10
	DefaultMaxRetries = 3
	maxFormatLength   = 256
)

// TaskStatus is the lifecycle state of a [DownloadTask].
type TaskStatus string

const (
	StatusQueued     TaskStatus = "QUEUED"
	StatusProcessing TaskStatus = "PROCESSING"
	StatusPaused     TaskStatus = "PAUSED"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusFailed     TaskStatus = "FAILED"
	StatusCancelled  TaskStatus = "CANCELLED"
)

var allStatuses = []TaskStatus{
	StatusQueued, StatusProcessing, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled,
}

var transitions = map[TaskStatus][]TaskStatus{
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusQueued, StatusPaused, StatusCancelled},
	StatusPaused:     {StatusQueued, StatusCancelled},
	StatusFailed:     {StatusQueued},
	StatusCancelled:  {StatusQueued},
	StatusCompleted:  {},
}

// ParseTaskStatus accepts any casing of a status name.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range allStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", shared.ErrInvalidRequest, s)
}

// IsActive reports whether a worker may currently own the task.
func (s TaskStatus) IsActive() bool {
	return s == StatusProcessing
}

// IsTerminal reports whether the task will not run again without an explicit retry.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TaskStatus) String() string { return string(s) }

// DownloadTask is one download job.
type DownloadTask struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	FormatSelection string     `json:"format_selection,omitempty"`
	Status          TaskStatus `json:"status"`
	Priority        int        `json:"priority"`
	Progress        float64    `json:"progress"`
	Speed           string     `json:"speed,omitempty"`
	ETA             string     `json:"eta,omitempty"`
	DownloadedBytes *int64     `json:"downloaded_bytes,omitempty"`
	TotalBytes      *int64     `json:"total_bytes,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	Retries         int        `json:"retries"`
	MaxRetries      int        `json:"max_retries"`
	Title           *string    `json:"title,omitempty"`
	Thumbnail       *string    `json:"thumbnail,omitempty"`
	OutputPath      *string    `json:"output_path,omitempty"`
	NextAttemptAt   *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TaskOptions are the optional inputs of a new task.
type TaskOptions struct {
	FormatSelection string
	Priority        *int
	MaxRetries      *int
}

// NewDownloadTask validates the request and builds a Queued task with a fresh ID.
func NewDownloadTask(rawURL string, opts TaskOptions, defaults TaskDefaults, now time.Time) (*DownloadTask, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	format, err := ValidateFormat(opts.FormatSelection)
	if err != nil {
		return nil, err
	}

	priority := defaults.Priority
	if opts.Priority != nil {
		priority = *opts.Priority
	}
	maxRetries := defaults.MaxRetries
	if opts.MaxRetries != nil {
		if *opts.MaxRetries < 0 {
			return nil, fmt.Errorf("%w: max_retries must not be negative", shared.ErrInvalidRequest)
		}
		maxRetries = *opts.MaxRetries
	}

	return &DownloadTask{
		ID:              shared.GenerateID(),
		URL:             u,
		FormatSelection: format,
		Status:          StatusQueued,
		Priority:        priority,
		MaxRetries:      maxRetries,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// TaskDefaults come from the queue configuration.
type TaskDefaults struct {
	Priority   int
	MaxRetries int
}

// ValidateURL requires an absolute http(s) URL with a host and returns it trimmed.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", shared.ErrInvalidRequest)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed url: %v", shared.ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: url scheme must be http or https", shared.ErrInvalidRequest)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: url has no host", shared.ErrInvalidRequest)
	}
	return raw, nil
}

// ValidateFormat accepts an empty selection or a single downloader format expression such as "bv*+ba/b".
func ValidateFormat(format string) (string, error) {
	format = strings.TrimSpace(format)
	if len(format) > maxFormatLength {
		return "", fmt.Errorf("%w: format selection too long", shared.ErrInvalidRequest)
	}
	for _, r := range format {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("%w: format selection must not contain whitespace", shared.ErrInvalidRequest)
		}
	}
	if strings.HasPrefix(format, "-") {
		return "", fmt.Errorf("%w: format selection must not start with '-'", shared.ErrInvalidRequest)
	}
	return format, nil
}

// Clone returns a deep copy so callers never share pointers with the store.
func (t *DownloadTask) Clone() *DownloadTask {
	if t == nil {
		return nil
	}
	c := *t
	c.DownloadedBytes = clonePtr(t.DownloadedBytes)
	c.TotalBytes = clonePtr(t.TotalBytes)
	c.ErrorMessage = clonePtr(t.ErrorMessage)
	c.Title = clonePtr(t.Title)
	c.Thumbnail = clonePtr(t.Thumbnail)
	c.OutputPath = clonePtr(t.OutputPath)
	c.NextAttemptAt = clonePtr(t.NextAttemptAt)
	c.StartedAt = clonePtr(t.StartedAt)
	c.CompletedAt = clonePtr(t.CompletedAt)
	return &c
}

// Eligible reports whether the task may be admitted at now.
func (t *DownloadTask) Eligible(now time.Time) bool {
	return t.Status == StatusQueued && (t.NextAttemptAt == nil || !t.NextAttemptAt.After(now))
}

// AdmitsBefore orders admission candidates: priority desc, created_at asc, then id.
func (t *DownloadTask) AdmitsBefore(o *DownloadTask) bool {
	if t.Priority != o.Priority {
		return t.Priority > o.Priority
	}
	if !t.CreatedAt.Equal(o.CreatedAt) {
		return t.CreatedAt.Before(o.CreatedAt)
	}
	return t.ID < o.ID
}

// DisplayName prefers the title once metadata arrived.
func (t *DownloadTask) DisplayName() string {
	if t.Title != nil && *t.Title != "" {
		return *t.Title
	}
	return t.URL
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
