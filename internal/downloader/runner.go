package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/desertthunder/mediaq/internal/shared"
)

const maxLineLength = 1 << 20

// Stream identifies which pipe a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// LineFunc receives output lines in arrival order. It is never called concurrently.
type LineFunc func(stream Stream, line string)

// Runner executes the external downloader.
type Runner interface {
	// Stream runs the downloader, reporting each output line, until it exits or ctx is done.
	Stream(ctx context.Context, args []string, onLine LineFunc) error
	// Output runs the downloader to completion and returns its captured output.
	Output(ctx context.Context, args []string) (stdout, stderr []byte, err error)
}

// ExecRunner runs a real binary. Cancelling the context sends SIGTERM (an interrupt on Windows)
// and escalates to a kill after KillGrace.
type ExecRunner struct {
	Binary    string
	KillGrace time.Duration
}

// NewExecRunner creates an [ExecRunner].
func NewExecRunner(binary string, killGrace time.Duration) *ExecRunner {
	if killGrace <= 0 {
		killGrace = 5 * time.Second
	}
	return &ExecRunner{Binary: binary, KillGrace: killGrace}
}

func (r *ExecRunner) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.KillGrace
	return cmd
}

// Stream implements [Runner]. Output is consumed through line writers so that Wait, bounded by
// WaitDelay, owns the pipe copies even when an orphaned child keeps a pipe open.
func (r *ExecRunner) Stream(ctx context.Context, args []string, onLine LineFunc) error {
	cmd := r.command(ctx, args)

	var mu sync.Mutex
	emit := func(stream Stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		onLine(stream, line)
	}
	stdout := &lineWriter{stream: Stdout, emit: emit}
	stderr := &lineWriter{stream: Stderr, emit: emit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s not found: %v", shared.ErrServiceUnavailable, r.Binary, err)
		}
		return fmt.Errorf("%w: failed to start %s: %v", shared.ErrSubprocessCrash, r.Binary, err)
	}
	err := cmd.Wait()
	stdout.Flush()
	stderr.Flush()
	return classifyExit(ctx, err)
}

// Output implements [Runner].
func (r *ExecRunner) Output(ctx context.Context, args []string) ([]byte, []byte, error) {
	cmd := r.command(ctx, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) {
			return nil, stderr.Bytes(), fmt.Errorf("%w: %s not found: %v", shared.ErrServiceUnavailable, r.Binary, err)
		}
		return stdout.Bytes(), stderr.Bytes(), classifyExit(ctx, err)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// lineWriter splits written bytes on \n and \r and emits complete, non-empty lines.
type lineWriter struct {
	stream Stream
	emit   LineFunc
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		if line := string(w.buf[:i]); line != "" {
			w.emit(w.stream, line)
		}
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineLength {
		w.emit(w.stream, string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(w.stream, string(w.buf))
		w.buf = nil
	}
}

// classifyExit maps process exit to the error taxonomy. Context cancellation is reported as-is so the
// caller can read the cancel cause.
func classifyExit(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return fmt.Errorf("%w: killed by %v", shared.ErrSubprocessCrash, status.Signal())
		}
		return fmt.Errorf("%w: exit status %d", shared.ErrTransientDownload, exitErr.ExitCode())
	}
	return fmt.Errorf("%w: %v", shared.ErrSubprocessCrash, err)
}
