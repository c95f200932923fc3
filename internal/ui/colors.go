package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/mediaq/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title    lipgloss.Style
	ok       lipgloss.Style
	err      lipgloss.Style
	warn     lipgloss.Style
	help     lipgloss.Style
	selected lipgloss.Style
	status   map[models.TaskStatus]lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title:    NewBold(t).MarginBottom(1),
		ok:       NewBold(s),
		err:      NewBold(e),
		warn:     NewStyle(w),
		help:     NewEm(h),
		selected: NewBold(t),
		status: map[models.TaskStatus]lipgloss.Style{
			models.StatusQueued:     NewStyle(h),
			models.StatusProcessing: NewBold(t),
			models.StatusPaused:     NewStyle(w),
			models.StatusCompleted:  NewStyle(s),
			models.StatusFailed:     NewBold(e),
			models.StatusCancelled:  NewEm(h),
		},
	}
}

// Status returns the style a task status is drawn with.
func (p *Palette) Status(st models.TaskStatus) lipgloss.Style {
	if s, ok := p.status[st]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
