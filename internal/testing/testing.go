// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/mediaq/internal/downloader"
)

// Step is one scripted downloader invocation.
type Step struct {
	Stdout []string // lines reported on stdout, in order
	Stderr []string // lines reported on stderr after stdout
	Err    error    // returned once the lines are reported

	// Block keeps the run open after the lines until the context is cancelled.
	Block   bool
	// Release, when set, keeps the run open until it is closed or the context is cancelled.
	Release <-chan struct{}

	// Output and ErrOutput are returned by [FakeRunner.Output].
	Output    []byte
	ErrOutput []byte

	// Cookies, when set, is written to the path following a --cookies argument.
	Cookies string
}

// FakeRunner is a scripted [downloader.Runner]. Steps are consumed in order; once one step is left it is
// repeated for every further call. With no steps every call succeeds silently.
type FakeRunner struct {
	mu      sync.Mutex
	steps   []Step
	calls   [][]string
	Started chan []string
}

// NewFakeRunner creates a [FakeRunner].
func NewFakeRunner(steps ...Step) *FakeRunner {
	return &FakeRunner{steps: steps, Started: make(chan []string, 64)}
}

// Push appends steps to the script.
func (f *FakeRunner) Push(steps ...Step) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, steps...)
}

func (f *FakeRunner) next(args []string) Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), args...))
	if len(f.steps) == 0 {
		return Step{}
	}
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	return step
}

// Calls returns the argument lists of every invocation so far.
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Stream implements [downloader.Runner].
func (f *FakeRunner) Stream(ctx context.Context, args []string, onLine downloader.LineFunc) error {
	step := f.next(args)
	select {
	case f.Started <- args:
	default:
	}
	if err := writeCookies(step, args); err != nil {
		return err
	}

	for _, line := range step.Stdout {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onLine(downloader.Stdout, line)
	}
	for _, line := range step.Stderr {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onLine(downloader.Stderr, line)
	}
	if step.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	if step.Release != nil {
		select {
		case <-step.Release:
		case <-ctx.Done():
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return step.Err
}

// Output implements [downloader.Runner].
func (f *FakeRunner) Output(ctx context.Context, args []string) ([]byte, []byte, error) {
	step := f.next(args)
	if err := writeCookies(step, args); err != nil {
		return nil, nil, err
	}
	if step.Block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return step.Output, step.ErrOutput, step.Err
}

func writeCookies(step Step, args []string) error {
	if step.Cookies == "" {
		return nil
	}
	for i, a := range args {
		if a == "--cookies" && i+1 < len(args) {
			return os.WriteFile(args[i+1], []byte(step.Cookies), 0o600)
		}
	}
	return nil
}

// FakeOpener records URLs instead of launching a browser.
type FakeOpener struct {
	mu     sync.Mutex
	Opened []string
	Err    error
}

func (o *FakeOpener) Open(browser, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Opened = append(o.Opened, browser+" "+url)
	return o.Err
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %s waiting for %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
