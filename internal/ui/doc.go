// Package ui implements the `mediaq watch` terminal dashboard using bubbletea's Elm architecture.
//
// The [Model] polls [services.Service.GetQueueStatus] every second and also subscribes to the event stream, so
// progress events move the bars between polls and lifecycle events trigger an immediate refresh. When the
// stream is unavailable the dashboard falls back to polling alone.
//
// Each task is drawn by a bubbles/list delegate as a status line with a bubbles/progress bar over a detail line
// (size, speed and ETA while downloading, the error for failed tasks, the output file once complete).
//
// Keys act on the selected task (p pause, r resume, c cancel, R retry) or on the queue (space pause/resume,
// +/- concurrency). Results of a command are shown as a one-line notice. Help is shown with bubbles/help.
package ui
