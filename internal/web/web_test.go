package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/server"
	"github.com/desertthunder/mediaq/internal/services"
	"github.com/desertthunder/mediaq/internal/shared"
)

// fakeService records calls and fails every command with err when it is set.
type fakeService struct {
	mu     sync.Mutex
	calls  []string
	err    error
	topics []events.Topic
	events chan events.Event
}

func (f *fakeService) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeService) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeService) session(call, platformID string) (*models.PlatformSession, error) {
	if err := f.record(call); err != nil {
		return nil, err
	}
	return &models.PlatformSession{PlatformID: platformID, Status: models.SessionActive}, nil
}

func (f *fakeService) CreateDownloadTask(_ context.Context, req services.CreateTaskRequest) (*models.DownloadTask, error) {
	if err := f.record("create " + req.URL + " " + req.FormatSelection); err != nil {
		return nil, err
	}
	return &models.DownloadTask{ID: "t1", URL: req.URL, Status: models.StatusQueued}, nil
}

func (f *fakeService) CancelDownloadTask(_ context.Context, id string) error {
	return f.record("cancel " + id)
}

func (f *fakeService) PauseDownloadTask(_ context.Context, id string) error {
	return f.record("pause " + id)
}

func (f *fakeService) ResumeDownloadTask(_ context.Context, id string) error {
	return f.record("resume " + id)
}

func (f *fakeService) RetryDownloadTask(_ context.Context, id string) error {
	return f.record("retry " + id)
}

func (f *fakeService) PauseQueue(context.Context) error  { return f.record("queue pause") }
func (f *fakeService) ResumeQueue(context.Context) error { return f.record("queue resume") }

func (f *fakeService) SetConcurrency(_ context.Context, n int) error {
	return f.record(fmt.Sprintf("concurrency %d", n))
}

func (f *fakeService) GetQueueStatus(context.Context) (*models.QueueStatus, error) {
	if err := f.record("status"); err != nil {
		return nil, err
	}
	return &models.QueueStatus{Concurrency: 2}, nil
}

func (f *fakeService) GetAuthStatus(context.Context) ([]*models.PlatformSession, error) {
	if err := f.record("sessions"); err != nil {
		return nil, err
	}
	return []*models.PlatformSession{models.EmptySession("youtube")}, nil
}

func (f *fakeService) UpdateSession(_ context.Context, platformID, cookies, method string) (*models.PlatformSession, error) {
	return f.session("update "+platformID+" "+method+" "+cookies, platformID)
}

func (f *fakeService) ImportCurl(_ context.Context, platformID, curl string) (*models.PlatformSession, error) {
	return f.session("curl "+platformID+" "+curl, platformID)
}

func (f *fakeService) DeleteSession(_ context.Context, platformID string) error {
	return f.record("delete " + platformID)
}

func (f *fakeService) OpenLoginWindow(_ context.Context, platformID string) error {
	return f.record("login " + platformID)
}

func (f *fakeService) CheckLogin(_ context.Context, platformID string) (*models.PlatformSession, error) {
	return f.session("check "+platformID, platformID)
}

func (f *fakeService) ImportFromBrowser(_ context.Context, platformID, browser string) (*models.PlatformSession, error) {
	return f.session("import "+platformID+" "+browser, platformID)
}

func (f *fakeService) GetDownloaderStatus(context.Context) (*models.DownloaderInfo, error) {
	if err := f.record("downloader"); err != nil {
		return nil, err
	}
	return &models.DownloaderInfo{Binary: "yt-dlp", Available: true, Version: "2025.01.15"}, nil
}

func (f *fakeService) UpdateDownloader(context.Context) (*models.DownloaderInfo, error) {
	if err := f.record("downloader update"); err != nil {
		return nil, err
	}
	return &models.DownloaderInfo{Binary: "yt-dlp", Available: true, Version: "2025.02.01", PreviousVersion: "2025.01.15"}, nil
}

func (f *fakeService) Subscribe(ctx context.Context, topics ...events.Topic) (<-chan events.Event, error) {
	if err := f.record("subscribe"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.topics = topics
	f.mu.Unlock()

	out := make(chan events.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-f.events:
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func newTestServer(t *testing.T, svc services.Service) *httptest.Server {
	t.Helper()
	router := server.NewRouter(server.Options{})
	NewHandler(svc, nil).WithKeepAlive(20*time.Millisecond).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func request(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
		status int
		call   string
	}{
		{http.MethodPost, "/api/tasks", `{"url": "https://youtu.be/x", "format_selection": "best"}`, http.StatusCreated, "create https://youtu.be/x best"},
		{http.MethodPost, "/api/tasks/t1/cancel", "", http.StatusOK, "cancel t1"},
		{http.MethodPost, "/api/tasks/t1/pause", "", http.StatusOK, "pause t1"},
		{http.MethodPost, "/api/tasks/t1/resume", "", http.StatusOK, "resume t1"},
		{http.MethodPost, "/api/tasks/t1/retry", "", http.StatusOK, "retry t1"},
		{http.MethodGet, "/api/queue", "", http.StatusOK, "status"},
		{http.MethodPost, "/api/queue/pause", "", http.StatusOK, "queue pause"},
		{http.MethodPost, "/api/queue/resume", "", http.StatusOK, "queue resume"},
		{http.MethodPut, "/api/queue/concurrency", `{"concurrency": 4}`, http.StatusOK, "concurrency 4"},
		{http.MethodPut, "/api/sessions/x", `{"cookies": "c"}`, http.StatusOK, "update x manual c"},
		{http.MethodPut, "/api/sessions/x", `{"cookies": "c", "method": "webview"}`, http.StatusOK, "update x webview c"},
		{http.MethodPost, "/api/sessions/youtube/curl", `{"curl": "curl y"}`, http.StatusOK, "curl youtube curl y"},
		{http.MethodDelete, "/api/sessions/tiktok", "", http.StatusOK, "delete tiktok"},
		{http.MethodPost, "/api/sessions/tiktok/login", "", http.StatusOK, "login tiktok"},
		{http.MethodPost, "/api/sessions/tiktok/check", "", http.StatusOK, "check tiktok"},
		{http.MethodPost, "/api/sessions/instagram/import", `{"browser": "firefox"}`, http.StatusOK, "import instagram firefox"},
		{http.MethodGet, "/api/downloader", "", http.StatusOK, "downloader"},
		{http.MethodPost, "/api/downloader/update", "", http.StatusOK, "downloader update"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			svc := &fakeService{}
			srv := newTestServer(t, svc)

			status, _ := request(t, srv, tt.method, tt.path, tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if got := svc.last(); got != tt.call {
				t.Errorf("call = %q, want %q", got, tt.call)
			}
		})
	}
}

func TestResponses(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	t.Run("healthz", func(t *testing.T) {
		status, body := request(t, srv, http.MethodGet, "/healthz", "")
		if status != http.StatusOK || body["status"] != "ok" {
			t.Errorf("got %d %v", status, body)
		}
	})

	t.Run("created task", func(t *testing.T) {
		_, body := request(t, srv, http.MethodPost, "/api/tasks", `{"url": "https://youtu.be/x"}`)
		if body["id"] != "t1" || body["status"] != "QUEUED" {
			t.Errorf("unexpected body %v", body)
		}
	})

	t.Run("queue snapshot has a task list", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/queue")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		var status models.QueueStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if status.Tasks == nil || status.Concurrency != 2 {
			t.Errorf("unexpected snapshot %+v", status)
		}
	})

	t.Run("downloader update", func(t *testing.T) {
		_, body := request(t, srv, http.MethodPost, "/api/downloader/update", "")
		if body["version"] != "2025.02.01" || body["previous_version"] != "2025.01.15" || body["available"] != true {
			t.Errorf("unexpected body %v", body)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		status, body := request(t, srv, http.MethodPost, "/api/tasks", `{"url": `)
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
		if !strings.Contains(fmt.Sprint(body["error"]), "invalid request") {
			t.Errorf("unexpected error %v", body["error"])
		}
	})

	t.Run("browser required", func(t *testing.T) {
		status, _ := request(t, srv, http.MethodPost, "/api/sessions/x/import", `{}`)
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: bad url", shared.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: %q", shared.ErrUnsupportedPlatform, "vimeo"), http.StatusBadRequest},
		{fmt.Errorf("%w: task t1", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: task is COMPLETED", shared.ErrInvalidTransition), http.StatusConflict},
		{fmt.Errorf("%w: close chrome", shared.ErrBrowserLocked), http.StatusLocked},
		{fmt.Errorf("%w: line 3", shared.ErrParse), http.StatusUnprocessableEntity},
		{shared.ErrAuthRequired, http.StatusUnauthorized},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := &fakeService{err: tt.err}
			srv := newTestServer(t, svc)

			status, body := request(t, srv, http.MethodPost, "/api/tasks/t1/cancel", "")
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if body["error"] != tt.err.Error() {
				t.Errorf("error = %v, want %q", body["error"], tt.err.Error())
			}
		})
	}
}

func TestEventStream(t *testing.T) {
	svc := &fakeService{events: make(chan events.Event)}
	srv := newTestServer(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?topics=download-progress,download-failed", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}
	svc.mu.Lock()
	topics := svc.topics
	svc.mu.Unlock()
	if len(topics) != 2 || topics[0] != events.TopicProgress || topics[1] != events.TopicFailed {
		t.Errorf("topics = %v", topics)
	}

	go func() {
		svc.events <- events.Event{Topic: events.TopicProgress, Seq: 3, TaskID: "t1", Progress: &events.Progress{TaskID: "t1", Progress: 50}}
		svc.events <- events.Event{Topic: events.TopicFailed, Seq: 4, TaskID: "t1"}
	}()

	var frames []string
	var frame []string
	scanner := bufio.NewScanner(resp.Body)
	deadline := time.AfterFunc(5*time.Second, cancel)
	defer deadline.Stop()
	for len(frames) < 2 && scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			frame = append(frame, line)
			continue
		}
		if len(frame) > 0 && !strings.HasPrefix(frame[0], ":") {
			frames = append(frames, strings.Join(frame, "\n"))
		}
		frame = nil
	}

	want := []string{
		"id:3\nevent:download-progress\ndata:{\"task_id\":\"t1\",\"progress\":50}",
		"id:4\nevent:download-failed\ndata:{\"task_id\":\"t1\"}",
	}
	if len(frames) != len(want) {
		t.Fatalf("frames = %q, want %q", frames, want)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, frames[i], want[i])
		}
	}
}
