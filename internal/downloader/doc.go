// Package downloader runs the external media downloader for queued tasks.
//
// A [Worker] owns one PROCESSING task at a time. It starts the process through a [Runner], parses the
// `--newline` progress stream with [ParseLine], writes progress through the task store and publishes it on
// the event bus. When the process ends the worker decides the task's next status: completed, re-queued
// with backoff, failed, paused or cancelled.
package downloader
