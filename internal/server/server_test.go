package server

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/gin-gonic/gin"
)

func newTestRouter(opts Options) *gin.Engine {
	r := NewRouter(opts)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	return r
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	t.Run("CORS headers", func(t *testing.T) {
		r := newTestRouter(Options{CORSOrigin: "http://localhost:5173"})
		w := serve(r, http.MethodGet, "/ping")
		if w.Code != http.StatusOK || w.Body.String() != "pong" {
			t.Fatalf("got %d %q", w.Code, w.Body.String())
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("allow origin = %q", got)
		}
	})

	t.Run("CORS preflight", func(t *testing.T) {
		r := newTestRouter(Options{})
		w := serve(r, http.MethodOptions, "/ping")
		if w.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("allow origin = %q, want *", got)
		}
	})

	t.Run("Recovery", func(t *testing.T) {
		var buf bytes.Buffer
		r := newTestRouter(Options{Logger: shared.NewLogger(&buf)})
		w := serve(r, http.MethodGet, "/boom")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
		if !strings.Contains(buf.String(), "request failed") {
			t.Errorf("expected server error to be logged, got %q", buf.String())
		}
	})

	t.Run("Rate limit", func(t *testing.T) {
		r := newTestRouter(Options{RateLimit: 0.001, RateBurst: 2})
		for i := range 2 {
			if w := serve(r, http.MethodGet, "/ping"); w.Code != http.StatusOK {
				t.Fatalf("request %d: expected 200, got %d", i, w.Code)
			}
		}
		w := serve(r, http.MethodGet, "/ping")
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "rate limit exceeded") {
			t.Errorf("unexpected body %q", w.Body.String())
		}

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		other := httptest.NewRecorder()
		r.ServeHTTP(other, req)
		if other.Code != http.StatusOK {
			t.Errorf("other clients have their own bucket, got %d", other.Code)
		}
	})

	t.Run("Rate limit disabled", func(t *testing.T) {
		r := newTestRouter(Options{})
		for range 50 {
			if w := serve(r, http.MethodGet, "/ping"); w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
		}
	})
}

func TestServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	streaming := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("pong")) })
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		close(streaming)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	srv := New(ln.Addr().String(), mux, time.Second, shared.NewLogger(&bytes.Buffer{}))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/ping")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	stream, err := http.Get(base + "/stream")
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer stream.Body.Close()
	<-streaming

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down with an open stream")
	}
}
