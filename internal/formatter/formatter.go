// package formatter renders queue snapshots and platform sessions as terminal tables, CSV and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
)

const (
	shortIDLength  = 8
	maxTitleLength = 48
	timeLayout     = "2006-01-02 15:04"
)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// ShortID returns the first characters of a task id, enough to recognize it in a table.
func ShortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// Truncate shortens s to n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 1 {
		return s
	}
	return string(r[:n-1]) + "…"
}

// FormatSize renders downloaded and total byte counts, e.g. "4.50 MiB / 10.00 MiB".
func FormatSize(downloaded, total *int64) string {
	switch {
	case downloaded != nil && total != nil:
		return shared.FormatBytes(*downloaded) + " / " + shared.FormatBytes(*total)
	case total != nil:
		return shared.FormatBytes(*total)
	case downloaded != nil:
		return shared.FormatBytes(*downloaded)
	}
	return "-"
}

// FormatProgress renders a percentage with one decimal.
func FormatProgress(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// QueueSummary is the one-line header above a queue table: state, limit and counts by status.
func QueueSummary(status *models.QueueStatus) string {
	state := "running"
	if status.IsPaused {
		state = "paused"
	}

	counts := status.Counts()
	var parts []string
	for _, st := range []models.TaskStatus{
		models.StatusProcessing, models.StatusQueued, models.StatusPaused,
		models.StatusCompleted, models.StatusFailed, models.StatusCancelled,
	} {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(st))))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "empty")
	}

	return fmt.Sprintf("Queue %s, concurrency %d: %s", state, status.Concurrency, strings.Join(parts, ", "))
}

// QueueTable renders a snapshot as a bordered table preceded by [QueueSummary].
func QueueTable(status *models.QueueStatus) []byte {
	var buf bytes.Buffer
	buf.WriteString(QueueSummary(status) + "\n")
	if len(status.Tasks) == 0 {
		return buf.Bytes()
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STATUS", "PROGRESS", "SIZE", "SPEED", "ETA", "RETRIES", "TITLE").
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle })

	for _, task := range status.Tasks {
		title := task.DisplayName()
		if task.ErrorMessage != nil && task.Status == models.StatusFailed {
			title += " (" + *task.ErrorMessage + ")"
		}
		t.Row(
			ShortID(task.ID),
			string(task.Status),
			FormatProgress(task.Progress),
			FormatSize(task.DownloadedBytes, task.TotalBytes),
			orDash(task.Speed),
			orDash(task.ETA),
			fmt.Sprintf("%d/%d", task.Retries, task.MaxRetries),
			Truncate(title, maxTitleLength),
		)
	}

	buf.WriteString(t.String() + "\n")
	return buf.Bytes()
}

// QueueCSV converts tasks to CSV with full ids and RFC 3339 timestamps.
func QueueCSV(tasks []*models.DownloadTask) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{
		"ID", "URL", "Status", "Priority", "Progress", "Downloaded", "Total", "Retries", "MaxRetries",
		"Title", "OutputPath", "Error", "CreatedAt", "CompletedAt",
	}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, task := range tasks {
		record := []string{
			task.ID,
			task.URL,
			string(task.Status),
			strconv.Itoa(task.Priority),
			strconv.FormatFloat(task.Progress, 'f', 1, 64),
			int64String(task.DownloadedBytes),
			int64String(task.TotalBytes),
			strconv.Itoa(task.Retries),
			strconv.Itoa(task.MaxRetries),
			deref(task.Title),
			deref(task.OutputPath),
			deref(task.ErrorMessage),
			task.CreatedAt.UTC().Format(time.RFC3339),
			timeString(task.CompletedAt),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func int64String(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

func timeString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// TaskText is the plain text detail view of one task.
func TaskText(task *models.DownloadTask) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("%s\n", task.DisplayName()))
	buf.WriteString(fmt.Sprintf("   ID: %s\n", task.ID))
	buf.WriteString(fmt.Sprintf("   URL: %s\n", task.URL))
	buf.WriteString(fmt.Sprintf("   Status: %s\n", task.Status))
	buf.WriteString(fmt.Sprintf("   Priority: %d\n", task.Priority))
	if task.FormatSelection != "" {
		buf.WriteString(fmt.Sprintf("   Format: %s\n", task.FormatSelection))
	}
	if task.Status == models.StatusProcessing || task.Progress > 0 {
		buf.WriteString(fmt.Sprintf("   Progress: %s (%s)\n", FormatProgress(task.Progress), FormatSize(task.DownloadedBytes, task.TotalBytes)))
	}
	if task.OutputPath != nil {
		buf.WriteString(fmt.Sprintf("   Output: %s\n", *task.OutputPath))
	}
	if task.ErrorMessage != nil {
		buf.WriteString(fmt.Sprintf("   Error: %s\n", *task.ErrorMessage))
	}

	return buf.Bytes()
}

// SessionsTable renders one row per platform with its login state.
func SessionsTable(sessions []*models.PlatformSession) []byte {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PLATFORM", "STATUS", "USER", "METHOD", "EXPIRES", "VERIFIED").
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle })

	for _, s := range sessions {
		name := s.PlatformID
		if p, err := models.LookupPlatform(s.PlatformID); err == nil {
			name = p.Name
		}
		t.Row(
			name,
			string(s.Status),
			orDash(deref(s.Username)),
			orDash(deref(s.CookieMethod)),
			formatTime(s.ExpiresAt),
			formatTime(s.LastVerified),
		)
	}

	return []byte(t.String() + "\n")
}
