package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mediaq/internal/formatter"
	"github.com/desertthunder/mediaq/internal/models"
)

const (
	barWidth       = 24
	statusWidth    = 10
	maxNameLength  = 60
	detailIndent   = "    "
	cursorSelected = "› "
	cursorIdle     = "  "
)

var (
	_ list.Item         = taskItem{}
	_ list.ItemDelegate = taskDelegate{}
)

// taskItem wraps [models.DownloadTask] to implement [list.Item].
type taskItem struct {
	task *models.DownloadTask
}

func (i taskItem) FilterValue() string { return i.task.DisplayName() }
func (i taskItem) Title() string       { return i.task.DisplayName() }
func (i taskItem) Description() string {
	t := i.task
	switch {
	case t.ErrorMessage != nil && (t.Status == models.StatusFailed || t.Status == models.StatusQueued):
		return *t.ErrorMessage
	case t.Status == models.StatusProcessing:
		parts := []string{formatter.FormatSize(t.DownloadedBytes, t.TotalBytes)}
		if t.Speed != "" {
			parts = append(parts, t.Speed)
		}
		if t.ETA != "" {
			parts = append(parts, "ETA "+t.ETA)
		}
		return strings.Join(parts, " • ")
	case t.OutputPath != nil:
		return *t.OutputPath
	}
	return t.URL
}

func taskItems(tasks []*models.DownloadTask) []list.Item {
	items := make([]list.Item, len(tasks))
	for i, t := range tasks {
		items[i] = taskItem{task: t}
	}
	return items
}

// taskDelegate draws a task as a status line with a progress bar over a detail line.
type taskDelegate struct {
	bar progress.Model
}

func newTaskDelegate() taskDelegate {
	return taskDelegate{bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth))}
}

func (d taskDelegate) Height() int                             { return 2 }
func (d taskDelegate) Spacing() int                            { return 1 }
func (d taskDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d taskDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(taskItem)
	if !ok {
		return
	}

	cursor := cursorIdle
	name := formatter.Truncate(it.Title(), maxNameLength)
	if index == m.Index() {
		cursor = styles.selected.Render(cursorSelected)
		name = styles.selected.Render(name)
	}

	status := styles.Status(it.task.Status).Render(fmt.Sprintf("%-*s", statusWidth, it.task.Status))
	line := fmt.Sprintf("%s%s %s %6s  %s",
		cursor, status, d.bar.ViewAs(it.task.Progress/100), formatter.FormatProgress(it.task.Progress), name)

	detail := it.Description()
	if it.task.Status == models.StatusFailed {
		detail = styles.err.Render(detail)
	} else {
		detail = styles.help.Render(detail)
	}

	fmt.Fprintf(w, "%s\n%s%s", line, detailIndent, detail)
}
