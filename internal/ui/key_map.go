package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the dashboard.
type keyMap struct {
	up          key.Binding
	down        key.Binding
	pause       key.Binding
	resume      key.Binding
	cancel      key.Binding
	retry       key.Binding
	toggleQueue key.Binding
	more        key.Binding
	fewer       key.Binding
	help        key.Binding
	quit        key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		pause:       key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		resume:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
		cancel:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		retry:       key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry")),
		toggleQueue: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "pause/resume queue")),
		more:        key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "more slots")),
		fewer:       key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "fewer slots")),
		help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.pause, k.resume, k.cancel, k.retry, k.toggleQueue, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down},
		{k.pause, k.resume, k.cancel, k.retry},
		{k.toggleQueue, k.more, k.fewer},
		{k.help, k.quit},
	}
}
