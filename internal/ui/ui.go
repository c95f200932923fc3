package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/formatter"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/services"
	"github.com/desertthunder/mediaq/internal/shared"
)

const (
	refreshInterval = time.Second
	// lines taken by the header, notice and help around the list
	chromeHeight = 6
)

// Model represents the dashboard state.
type Model struct {
	ctx      context.Context
	svc      services.Service
	list     list.Model
	help     help.Model
	keys     keyMap
	status   *models.QueueStatus
	events   <-chan events.Event
	notice   string
	err      error
	width    int
	height   int
	interval time.Duration
}

// NewModel creates a dashboard over svc.
func NewModel(ctx context.Context, svc services.Service) *Model {
	l := list.New(nil, newTaskDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return &Model{
		ctx:      ctx,
		svc:      svc,
		list:     l,
		help:     help.New(),
		keys:     newKeyMap(),
		interval: refreshInterval,
	}
}

// Init fetches the first snapshot, starts polling and subscribes to live events.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus(), m.tick(), m.subscribe())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.list.SetSize(msg.Width, max(msg.Height-chromeHeight, 1))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTick:
		return m, tea.Batch(m.fetchStatus(), m.tick())

	case MsgStatusFetched:
		res := msg.data.(statusResult)
		if res.err != nil {
			m.err = res.err
			return m, nil
		}
		m.err = nil
		m.setStatus(res.status)
		return m, nil

	case MsgCommandDone:
		res := msg.data.(commandResult)
		if res.err != nil {
			m.notice = styles.err.Render(fmt.Sprintf("%s failed: %v", res.action, res.err))
		} else {
			m.notice = styles.ok.Render(res.action)
		}
		return m, m.fetchStatus()

	case MsgSubscribed:
		sub := msg.data.(subscription)
		if sub.err != nil {
			return m, nil
		}
		m.events = sub.ch
		return m, m.waitForEvent()

	case MsgEvent:
		e := msg.data.(events.Event)
		if e.Topic == events.TopicProgress && m.applyProgress(e.Progress) {
			return m, m.waitForEvent()
		}
		return m, tea.Batch(m.fetchStatus(), m.waitForEvent())

	case MsgStreamClosed:
		m.events = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.pause):
		return m, m.taskCommand("pause", m.svc.PauseDownloadTask)
	case key.Matches(msg, m.keys.resume):
		return m, m.taskCommand("resume", m.svc.ResumeDownloadTask)
	case key.Matches(msg, m.keys.cancel):
		return m, m.taskCommand("cancel", m.svc.CancelDownloadTask)
	case key.Matches(msg, m.keys.retry):
		return m, m.taskCommand("retry", m.svc.RetryDownloadTask)
	case key.Matches(msg, m.keys.toggleQueue):
		return m, m.toggleQueue()
	case key.Matches(msg, m.keys.more):
		return m, m.adjustConcurrency(1)
	case key.Matches(msg, m.keys.fewer):
		return m, m.adjustConcurrency(-1)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// setStatus replaces the list items, keeping the cursor on the same task when it still exists.
func (m *Model) setStatus(status *models.QueueStatus) {
	selected := m.selectedID()
	m.status = status
	m.list.SetItems(taskItems(status.Tasks))
	for i, t := range status.Tasks {
		if t.ID == selected {
			m.list.Select(i)
			break
		}
	}
}

// applyProgress updates a listed task in place from a progress event.
func (m *Model) applyProgress(p *events.Progress) bool {
	if p == nil || m.status == nil {
		return false
	}
	for i, t := range m.status.Tasks {
		if t.ID != p.TaskID {
			continue
		}
		updated := t.Clone()
		updated.Progress = p.Progress
		updated.Speed = p.Speed
		updated.ETA = p.ETA
		updated.DownloadedBytes = p.DownloadedBytes
		updated.TotalBytes = p.TotalBytes
		m.status.Tasks[i] = updated
		m.list.SetItem(i, taskItem{task: updated})
		return true
	}
	return false
}

func (m *Model) selectedID() string {
	if it, ok := m.list.SelectedItem().(taskItem); ok {
		return it.task.ID
	}
	return ""
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		status, err := m.svc.GetQueueStatus(m.ctx)
		return statusFetchedMsg(status, err)
	}
}

func (m *Model) subscribe() tea.Cmd {
	return func() tea.Msg {
		ch, err := m.svc.Subscribe(m.ctx)
		return subscribedMsg(ch, err)
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	ch := m.events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return streamClosedMsg()
		}
		return eventMsg(e)
	}
}

func (m *Model) taskCommand(action string, fn func(context.Context, string) error) tea.Cmd {
	id := m.selectedID()
	if id == "" {
		return nil
	}
	label := fmt.Sprintf("%s %s", action, formatter.ShortID(id))
	return func() tea.Msg {
		return commandDoneMsg(label, fn(m.ctx, id))
	}
}

func (m *Model) toggleQueue() tea.Cmd {
	if m.status == nil {
		return nil
	}
	if m.status.IsPaused {
		return func() tea.Msg { return commandDoneMsg("resume queue", m.svc.ResumeQueue(m.ctx)) }
	}
	return func() tea.Msg { return commandDoneMsg("pause queue", m.svc.PauseQueue(m.ctx)) }
}

func (m *Model) adjustConcurrency(delta int) tea.Cmd {
	if m.status == nil {
		return nil
	}
	n := m.status.Concurrency + delta
	if n < 1 {
		return nil
	}
	label := fmt.Sprintf("concurrency %d", n)
	return func() tea.Msg { return commandDoneMsg(label, m.svc.SetConcurrency(m.ctx, n)) }
}

// View renders the header, the task list and the help line.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("mediaq") + "\n")

	switch {
	case m.err != nil && errors.Is(m.err, shared.ErrServiceUnavailable):
		b.WriteString(styles.err.Render("Cannot reach the mediaq server. Is `mediaq serve` running?") + "\n")
	case m.err != nil:
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	case m.status == nil:
		b.WriteString(styles.help.Render("Loading queue...") + "\n")
	default:
		summary := formatter.QueueSummary(m.status)
		if m.status.IsPaused {
			summary = styles.warn.Render(summary)
		}
		b.WriteString(summary + "\n")
	}

	if m.status != nil {
		if len(m.status.Tasks) == 0 {
			b.WriteString("\n" + styles.help.Render("No downloads yet. Add one with `mediaq add <url>`.") + "\n")
		} else {
			b.WriteString("\n" + m.list.View() + "\n")
		}
	}

	if m.notice != "" {
		b.WriteString("\n" + m.notice + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))

	return b.String()
}
