// HTTP client for a running `mediaq serve`
package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
)

const DefaultBaseURL = "http://127.0.0.1:7878"

// Client implements [Service] against the HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Service = (*Client)(nil)

// NewClient creates a new API client. The client must not set a timeout if it is used for [Client.Subscribe].
func NewClient(baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do performs a request with an optional JSON body and returns the raw response.
func (c *Client) Do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// call sends in as JSON and decodes a successful response into out. Error responses become [RemoteError].
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var data []byte
	if in != nil {
		var err error
		if data, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	resp, err := c.Do(ctx, method, path, data)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			body.Error = strings.TrimSpace(string(resp.Body))
		}
		return errorFromStatus(resp.StatusCode, body.Error)
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func taskPath(id, action string) string {
	return "/api/tasks/" + url.PathEscape(id) + "/" + action
}

func sessionPath(platformID string, action ...string) string {
	return strings.Join(append([]string{"/api/sessions", url.PathEscape(platformID)}, action...), "/")
}

func (c *Client) CreateDownloadTask(ctx context.Context, req CreateTaskRequest) (*models.DownloadTask, error) {
	var task models.DownloadTask
	if err := c.call(ctx, http.MethodPost, "/api/tasks", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) CancelDownloadTask(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, taskPath(id, "cancel"), nil, nil)
}

func (c *Client) PauseDownloadTask(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, taskPath(id, "pause"), nil, nil)
}

func (c *Client) ResumeDownloadTask(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, taskPath(id, "resume"), nil, nil)
}

func (c *Client) RetryDownloadTask(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, taskPath(id, "retry"), nil, nil)
}

func (c *Client) PauseQueue(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/queue/pause", nil, nil)
}

func (c *Client) ResumeQueue(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/queue/resume", nil, nil)
}

func (c *Client) SetConcurrency(ctx context.Context, n int) error {
	return c.call(ctx, http.MethodPut, "/api/queue/concurrency", ConcurrencyRequest{Concurrency: n}, nil)
}

func (c *Client) GetQueueStatus(ctx context.Context) (*models.QueueStatus, error) {
	var status models.QueueStatus
	if err := c.call(ctx, http.MethodGet, "/api/queue", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) GetAuthStatus(ctx context.Context) ([]*models.PlatformSession, error) {
	var sessions []*models.PlatformSession
	if err := c.call(ctx, http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) session(ctx context.Context, method, path string, in any) (*models.PlatformSession, error) {
	var sess models.PlatformSession
	if err := c.call(ctx, method, path, in, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *Client) UpdateSession(ctx context.Context, platformID, cookies, method string) (*models.PlatformSession, error) {
	return c.session(ctx, http.MethodPut, sessionPath(platformID), SessionRequest{Cookies: cookies, Method: method})
}

func (c *Client) ImportCurl(ctx context.Context, platformID, curl string) (*models.PlatformSession, error) {
	return c.session(ctx, http.MethodPost, sessionPath(platformID, "curl"), SessionRequest{Curl: curl})
}

func (c *Client) DeleteSession(ctx context.Context, platformID string) error {
	return c.call(ctx, http.MethodDelete, sessionPath(platformID), nil, nil)
}

func (c *Client) OpenLoginWindow(ctx context.Context, platformID string) error {
	return c.call(ctx, http.MethodPost, sessionPath(platformID, "login"), nil, nil)
}

func (c *Client) CheckLogin(ctx context.Context, platformID string) (*models.PlatformSession, error) {
	return c.session(ctx, http.MethodPost, sessionPath(platformID, "check"), nil)
}

func (c *Client) ImportFromBrowser(ctx context.Context, platformID, browser string) (*models.PlatformSession, error) {
	return c.session(ctx, http.MethodPost, sessionPath(platformID, "import"), SessionRequest{Browser: browser})
}

func (c *Client) downloader(ctx context.Context, method, path string) (*models.DownloaderInfo, error) {
	var info models.DownloaderInfo
	if err := c.call(ctx, method, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) GetDownloaderStatus(ctx context.Context) (*models.DownloaderInfo, error) {
	return c.downloader(ctx, http.MethodGet, "/api/downloader")
}

func (c *Client) UpdateDownloader(ctx context.Context) (*models.DownloaderInfo, error) {
	return c.downloader(ctx, http.MethodPost, "/api/downloader/update")
}

// Subscribe opens the server-sent event stream. The channel closes when ctx is done or the server goes away.
// A context that can never be done is rejected.
func (c *Client) Subscribe(ctx context.Context, topics ...events.Topic) (<-chan events.Event, error) {
	if ctx.Done() == nil {
		return nil, fmt.Errorf("%w: subscribe needs a cancellable context", shared.ErrInvalidRequest)
	}
	path := "/api/events"
	if len(topics) > 0 {
		names := make([]string, len(topics))
		for i, t := range topics {
			names[i] = string(t)
		}
		path += "?topics=" + url.QueryEscape(strings.Join(names, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrServiceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, errorFromStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out := make(chan events.Event, events.DefaultBuffer)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		readEvents(ctx, resp.Body, out)
	}()
	return out, nil
}

// readEvents parses "event:", "id:" and "data:" fields, dispatching on each blank line.
func readEvents(ctx context.Context, r io.Reader, out chan<- events.Event) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var (
		topic string
		seq   uint64
		data  []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				topic = value
			case "id":
				seq, _ = strconv.ParseUint(value, 10, 64)
			case "data":
				data = append(data, value)
			}
			continue
		}

		if topic != "" && len(data) > 0 {
			e, err := events.Decode(events.Topic(topic), seq, []byte(strings.Join(data, "\n")))
			if err == nil {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
		topic, seq, data = "", 0, nil
	}
}
