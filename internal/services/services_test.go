package services_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mediaq/internal/downloader"
	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/repositories"
	"github.com/desertthunder/mediaq/internal/server"
	"github.com/desertthunder/mediaq/internal/services"
	"github.com/desertthunder/mediaq/internal/sessions"
	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/desertthunder/mediaq/internal/store"
	"github.com/desertthunder/mediaq/internal/tasks"
	tu "github.com/desertthunder/mediaq/internal/testing"
	"github.com/desertthunder/mediaq/internal/web"
)

const wait = 3 * time.Second

type stack struct {
	local  *services.Local
	client *services.Client
	runner *tu.FakeRunner
}

// newStack wires the full in-process stack and serves it over httptest. The queue starts paused so tests
// decide when downloads run.
func newStack(t *testing.T) *stack {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sealer, err := shared.NewSealer(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}

	runner := tu.NewFakeRunner()
	bus := events.NewBus(nil)
	taskStore := store.New(repositories.NewTaskRepository(db), nil)
	sess := sessions.New(repositories.NewSessionRepository(db), sealer, runner, bus,
		sessions.Config{LoginBrowser: "chrome", TTL: time.Hour}, nil, sessions.WithOpener(&tu.FakeOpener{}))
	worker := downloader.NewWorker(taskStore, bus, runner, downloader.Options{
		OutputDir:        t.TempDir(),
		Watchdog:         time.Minute,
		ProgressInterval: time.Millisecond,
		BackoffBase:      time.Millisecond,
		BackoffMax:       time.Millisecond,
	}, nil, downloader.WithSessions(sess))

	sched := tasks.New(taskStore, bus, worker, tasks.Config{
		Concurrency: 1,
		Defaults:    models.TaskDefaults{Priority: 10, MaxRetries: 1},
	}, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}
	t.Cleanup(sched.Stop)
	if err := sched.PauseQueue(); err != nil {
		t.Fatalf("failed to pause queue: %v", err)
	}

	local := services.NewLocal(sched, sess, bus).WithDownloader(runner, "yt-dlp")
	router := server.NewRouter(server.Options{})
	web.NewHandler(local, nil).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &stack{local: local, client: services.NewClient(srv.URL, srv.Client()), runner: runner}
}

func (s *stack) impls() map[string]services.Service {
	return map[string]services.Service{"local": s.local, "client": s.client}
}

func taskStatus(t *testing.T, svc services.Service, id string) models.TaskStatus {
	t.Helper()
	status, err := svc.GetQueueStatus(context.Background())
	if err != nil {
		t.Fatalf("GetQueueStatus failed: %v", err)
	}
	for _, task := range status.Tasks {
		if task.ID == id {
			return task.Status
		}
	}
	return ""
}

func TestTaskCommands(t *testing.T) {
	for name, svc := range newStack(t).impls() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			task, err := svc.CreateDownloadTask(ctx, services.CreateTaskRequest{URL: "https://www.youtube.com/watch?v=" + name})
			if err != nil {
				t.Fatalf("CreateDownloadTask failed: %v", err)
			}
			if task.Status != models.StatusQueued || task.ID == "" {
				t.Errorf("unexpected task %+v", task)
			}

			status, err := svc.GetQueueStatus(ctx)
			if err != nil {
				t.Fatalf("GetQueueStatus failed: %v", err)
			}
			if !status.IsPaused || status.Concurrency != 1 {
				t.Errorf("unexpected snapshot %+v", status)
			}

			tests := []struct {
				name string
				call func() error
				want error
			}{
				{"invalid url", func() error {
					_, err := svc.CreateDownloadTask(ctx, services.CreateTaskRequest{URL: "not a url"})
					return err
				}, shared.ErrInvalidRequest},
				{"invalid format", func() error {
					_, err := svc.CreateDownloadTask(ctx, services.CreateTaskRequest{URL: "https://x.com/a/status/1", FormatSelection: "best video"})
					return err
				}, shared.ErrInvalidRequest},
				{"unknown task", func() error { return svc.CancelDownloadTask(ctx, "missing") }, shared.ErrNotFound},
				{"retry queued", func() error { return svc.RetryDownloadTask(ctx, task.ID) }, shared.ErrInvalidTransition},
				{"pause queued", func() error { return svc.PauseDownloadTask(ctx, task.ID) }, shared.ErrInvalidTransition},
				{"resume queued", func() error { return svc.ResumeDownloadTask(ctx, task.ID) }, shared.ErrInvalidTransition},
				{"zero concurrency", func() error { return svc.SetConcurrency(ctx, 0) }, shared.ErrInvalidRequest},
			}
			for _, tt := range tests {
				if err := tt.call(); !errors.Is(err, tt.want) {
					t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
				}
			}

			if err := svc.CancelDownloadTask(ctx, task.ID); err != nil {
				t.Fatalf("CancelDownloadTask failed: %v", err)
			}
			if got := taskStatus(t, svc, task.ID); got != models.StatusCancelled {
				t.Errorf("status = %s, want CANCELLED", got)
			}
			if err := svc.CancelDownloadTask(ctx, task.ID); !errors.Is(err, shared.ErrInvalidTransition) {
				t.Errorf("second cancel err = %v, want ErrInvalidTransition", err)
			}
			if err := svc.RetryDownloadTask(ctx, task.ID); err != nil {
				t.Errorf("RetryDownloadTask failed: %v", err)
			}
			if got := taskStatus(t, svc, task.ID); got != models.StatusQueued {
				t.Errorf("status = %s, want QUEUED", got)
			}
		})
	}
}

func TestQueueRunsAfterResume(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task, err := s.client.CreateDownloadTask(ctx, services.CreateTaskRequest{URL: "https://youtu.be/abc"})
	if err != nil {
		t.Fatalf("CreateDownloadTask failed: %v", err)
	}
	ch, err := s.client.Subscribe(ctx, events.TopicCompleted)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := s.client.SetConcurrency(ctx, 2); err != nil {
		t.Fatalf("SetConcurrency failed: %v", err)
	}
	if err := s.client.ResumeQueue(ctx); err != nil {
		t.Fatalf("ResumeQueue failed: %v", err)
	}

	select {
	case e := <-ch:
		if e.Topic != events.TopicCompleted || e.TaskID != task.ID {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(wait):
		t.Fatal("no completion event")
	}

	status, err := s.client.GetQueueStatus(ctx)
	if err != nil {
		t.Fatalf("GetQueueStatus failed: %v", err)
	}
	if status.IsPaused || status.Concurrency != 2 {
		t.Errorf("unexpected snapshot %+v", status)
	}
	if got := taskStatus(t, s.client, task.ID); got != models.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got)
	}
}

func TestSessionCommands(t *testing.T) {
	for name, svc := range newStack(t).impls() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sessions, err := svc.GetAuthStatus(ctx)
			if err != nil {
				t.Fatalf("GetAuthStatus failed: %v", err)
			}
			if len(sessions) != 4 {
				t.Errorf("expected 4 platforms, got %d", len(sessions))
			}

			if _, err := svc.UpdateSession(ctx, "x", "not a cookie file", "manual"); !errors.Is(err, shared.ErrParse) {
				t.Errorf("err = %v, want ErrParse", err)
			}
			if _, err := svc.UpdateSession(ctx, "vimeo", "", "manual"); !errors.Is(err, shared.ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
			if _, err := svc.ImportFromBrowser(ctx, "x", "safari"); !errors.Is(err, shared.ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
			if err := svc.OpenLoginWindow(ctx, "x"); err != nil {
				t.Errorf("OpenLoginWindow failed: %v", err)
			}

			changed, err := svc.Subscribe(ctx, events.TopicSession)
			if err != nil {
				t.Fatalf("Subscribe failed: %v", err)
			}
			cookies := "# Netscape HTTP Cookie File\n.x.com\tTRUE\t/\tTRUE\t0\tauth_token\tabc\n"
			sess, err := svc.UpdateSession(ctx, "x", cookies, "manual")
			if err != nil {
				t.Fatalf("UpdateSession failed: %v", err)
			}
			if sess.Status != models.SessionActive || sess.PlatformID != "x" {
				t.Errorf("unexpected session %+v", sess)
			}
			select {
			case e := <-changed:
				if e.PlatformID != "x" {
					t.Errorf("event platform = %q", e.PlatformID)
				}
			case <-time.After(wait):
				t.Fatal("no session event")
			}

			if err := svc.DeleteSession(ctx, "x"); err != nil {
				t.Errorf("DeleteSession failed: %v", err)
			}
		})
	}
}

func TestBrowserLockedOverHTTP(t *testing.T) {
	s := newStack(t)
	s.runner.Push(tu.Step{
		ErrOutput: []byte("ERROR: Could not copy Chrome cookie database. database is locked"),
		Err:       errors.New("exit status 1"),
	})

	_, err := s.client.ImportFromBrowser(context.Background(), "youtube", "chrome")
	if !errors.Is(err, shared.ErrBrowserLocked) {
		t.Fatalf("err = %v, want ErrBrowserLocked", err)
	}
	var remote *services.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusLocked {
		t.Errorf("expected 423 RemoteError, got %#v", err)
	}
	if !strings.Contains(err.Error(), "close chrome") {
		t.Errorf("error should tell the user to close the browser: %v", err)
	}
}

func TestClient(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		srv := services.NewClient("", nil)
		_, err := srv.Do(context.Background(), http.MethodGet, "/test\x00invalid", nil)
		if err == nil || !strings.Contains(err.Error(), "failed to create request") {
			t.Errorf("expected 'failed to create request' error, got %v", err)
		}
	})

	t.Run("failed request", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))}
		_, err := services.NewClient("http://example.com", client).GetQueueStatus(context.Background())
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("failed body read", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(&http.Response{
			StatusCode: http.StatusOK,
			Body:       &tu.FCloser{},
			Header:     http.Header{},
		}, nil)}
		_, err := services.NewClient("http://example.com", client).GetQueueStatus(context.Background())
		if err == nil || !strings.Contains(err.Error(), "failed to read response") {
			t.Errorf("expected 'failed to read response' error, got %v", err)
		}
	})

	t.Run("non json error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer srv.Close()

		err := services.NewClient(srv.URL, nil).PauseQueue(context.Background())
		var remote *services.RemoteError
		if !errors.As(err, &remote) || remote.StatusCode != http.StatusBadGateway || remote.Message != "upstream down" {
			t.Errorf("unexpected error %#v", err)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": "rate limit exceeded"}`))
		}))
		defer srv.Close()

		err := services.NewClient(srv.URL, nil).PauseQueue(context.Background())
		if !errors.Is(err, shared.ErrServiceUnavailable) || err.Error() != "rate limit exceeded" {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("event stream ends with the context", func(t *testing.T) {
		s := newStack(t)
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := s.client.Subscribe(ctx)
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		cancel()

		deadline := time.After(wait)
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("event channel was not closed")
			}
		}
	})
}

func TestDownloaderCommands(t *testing.T) {
	s := newStack(t)
	s.runner.Push(tu.Step{Output: []byte("2025.01.15\n")})

	for name, svc := range s.impls() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			info, err := svc.GetDownloaderStatus(ctx)
			if err != nil {
				t.Fatalf("GetDownloaderStatus failed: %v", err)
			}
			if !info.Available || info.Version != "2025.01.15" || info.Binary != "yt-dlp" {
				t.Errorf("unexpected status %+v", info)
			}

			info, err = svc.UpdateDownloader(ctx)
			if err != nil {
				t.Fatalf("UpdateDownloader failed: %v", err)
			}
			if info.PreviousVersion != "2025.01.15" || info.Version != "2025.01.15" || info.Updated() {
				t.Errorf("unexpected update %+v", info)
			}
		})
	}

	t.Run("not configured", func(t *testing.T) {
		local := services.NewLocal(nil, nil, nil)
		if _, err := local.GetDownloaderStatus(context.Background()); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("GetDownloaderStatus err = %v, want ErrServiceUnavailable", err)
		}
		if _, err := local.UpdateDownloader(context.Background()); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("UpdateDownloader err = %v, want ErrServiceUnavailable", err)
		}
	})

	t.Run("update failure maps to a status", func(t *testing.T) {
		s := newStack(t)
		s.runner.Push(
			tu.Step{Output: []byte("2025.01.15\n")},
			tu.Step{ErrOutput: []byte("ERROR: no write permission"), Err: shared.ErrTransientDownload},
		)
		_, err := s.client.UpdateDownloader(context.Background())
		var remote *services.RemoteError
		if !errors.As(err, &remote) || !strings.Contains(remote.Message, "no write permission") {
			t.Errorf("unexpected error %#v", err)
		}
	})
}

func TestSubscribeRelease(t *testing.T) {
	s := newStack(t)

	for name, svc := range s.impls() {
		t.Run(name+" rejects a context that never ends", func(t *testing.T) {
			if _, err := svc.Subscribe(context.Background()); !errors.Is(err, shared.ErrInvalidRequest) {
				t.Errorf("Subscribe err = %v, want ErrInvalidRequest", err)
			}
		})

		t.Run(name+" closes after cancel", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			ch, err := svc.Subscribe(ctx)
			if err != nil {
				t.Fatalf("Subscribe failed: %v", err)
			}
			cancel()

			deadline := time.After(wait)
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						return
					}
				case <-deadline:
					t.Fatal("event channel was not closed")
				}
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrInvalidTransition, http.StatusConflict},
		{shared.ErrUnsupportedPlatform, http.StatusBadRequest},
		{shared.ErrMissingArgument, http.StatusBadRequest},
		{shared.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{shared.ErrSubprocessCrash, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := services.HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
