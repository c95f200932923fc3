package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/models"
)

// MsgKind enumerates all message types in the dashboard.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTick MsgKind = iota
	MsgStatusFetched
	MsgCommandDone
	MsgSubscribed
	MsgEvent
	MsgStreamClosed
)

type statusResult struct {
	status *models.QueueStatus
	err    error
}

type subscription struct {
	ch  <-chan events.Event
	err error
}

type commandResult struct {
	action string
	err    error
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}

// statusFetchedMsg is the constructor for [MsgStatusFetched]
func statusFetchedMsg(status *models.QueueStatus, err error) Msg {
	return Msg{kind: MsgStatusFetched, data: statusResult{status, err}}
}

// commandDoneMsg is the constructor for [MsgCommandDone]
func commandDoneMsg(action string, err error) Msg {
	return Msg{kind: MsgCommandDone, data: commandResult{action, err}}
}

// subscribedMsg is the constructor for [MsgSubscribed]
func subscribedMsg(ch <-chan events.Event, err error) Msg {
	return Msg{kind: MsgSubscribed, data: subscription{ch, err}}
}

// eventMsg is the constructor for [MsgEvent]
func eventMsg(e events.Event) Msg {
	return Msg{kind: MsgEvent, data: e}
}

// streamClosedMsg is the constructor for [MsgStreamClosed]
func streamClosedMsg() Msg {
	return Msg{kind: MsgStreamClosed}
}
