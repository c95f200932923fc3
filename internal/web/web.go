// Package web serves the [services.Service] command surface as a JSON API with a server-sent event stream.
//
// Routes
//
//	GET    /healthz                         → liveness
//	POST   /api/tasks                       → create a task (201)
//	POST   /api/tasks/:id/cancel            → cancel
//	POST   /api/tasks/:id/pause             → pause a processing task
//	POST   /api/tasks/:id/resume            → resume a paused task
//	POST   /api/tasks/:id/retry             → retry a failed or cancelled task
//	GET    /api/queue                       → queue snapshot
//	POST   /api/queue/pause                 → stop admission
//	POST   /api/queue/resume                → restart admission
//	PUT    /api/queue/concurrency           → change the parallel download limit
//	GET    /api/sessions                    → one session per platform
//	PUT    /api/sessions/:platform          → store cookie text {cookies, method}
//	DELETE /api/sessions/:platform          → disconnect
//	POST   /api/sessions/:platform/curl     → store cookies from a "Copy as cURL" command {curl}
//	POST   /api/sessions/:platform/login    → open the login window
//	POST   /api/sessions/:platform/check    → read cookies back from the login browser
//	POST   /api/sessions/:platform/import   → import from a local browser {browser}
//	GET    /api/downloader                  → downloader binary and version
//	POST   /api/downloader/update           → run the downloader's self-update
//	GET    /api/events?topics=a,b           → server-sent events
//
// Errors are returned as {"error": "..."} with the status from [services.HTTPStatus].
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/services"
	"github.com/desertthunder/mediaq/internal/shared"
	"github.com/gin-gonic/gin"
)

const defaultKeepAlive = 15 * time.Second

// Handler wires HTTP routes to a [services.Service].
type Handler struct {
	svc       services.Service
	logger    *log.Logger
	keepAlive time.Duration
}

// NewHandler creates a [Handler].
func NewHandler(svc services.Service, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{svc: svc, logger: logger, keepAlive: defaultKeepAlive}
}

// WithKeepAlive sets how often an idle event stream sends a comment line.
func (h *Handler) WithKeepAlive(d time.Duration) *Handler {
	h.keepAlive = d
	return h
}

// RegisterRoutes adds every route to router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/tasks", h.createTask)
		api.POST("/tasks/:id/cancel", h.taskCommand(h.svc.CancelDownloadTask))
		api.POST("/tasks/:id/pause", h.taskCommand(h.svc.PauseDownloadTask))
		api.POST("/tasks/:id/resume", h.taskCommand(h.svc.ResumeDownloadTask))
		api.POST("/tasks/:id/retry", h.taskCommand(h.svc.RetryDownloadTask))

		api.GET("/queue", h.queueStatus)
		api.POST("/queue/pause", h.queueCommand(h.svc.PauseQueue))
		api.POST("/queue/resume", h.queueCommand(h.svc.ResumeQueue))
		api.PUT("/queue/concurrency", h.setConcurrency)

		api.GET("/sessions", h.authStatus)
		api.PUT("/sessions/:platform", h.updateSession)
		api.DELETE("/sessions/:platform", h.deleteSession)
		api.POST("/sessions/:platform/curl", h.importCurl)
		api.POST("/sessions/:platform/login", h.openLogin)
		api.POST("/sessions/:platform/check", h.checkLogin)
		api.POST("/sessions/:platform/import", h.importBrowser)

		api.GET("/downloader", h.downloaderStatus)
		api.POST("/downloader/update", h.updateDownloader)

		api.GET("/events", h.streamEvents)
	}
}

// fail writes err with its mapped status. Server errors are logged, client errors are not.
func (h *Handler) fail(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err))
		return false
	}
	return true
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) createTask(c *gin.Context) {
	var req services.CreateTaskRequest
	if !h.bind(c, &req) {
		return
	}

	task, err := h.svc.CreateDownloadTask(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) taskCommand(fn func(ctx context.Context, id string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Request.Context(), c.Param("id")); err != nil {
			h.fail(c, err)
			return
		}
		ok(c)
	}
}

func (h *Handler) queueCommand(fn func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Request.Context()); err != nil {
			h.fail(c, err)
			return
		}
		ok(c)
	}
}

func (h *Handler) queueStatus(c *gin.Context) {
	status, err := h.svc.GetQueueStatus(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if status.Tasks == nil {
		status.Tasks = []*models.DownloadTask{}
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) setConcurrency(c *gin.Context) {
	var req services.ConcurrencyRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.SetConcurrency(c.Request.Context(), req.Concurrency); err != nil {
		h.fail(c, err)
		return
	}
	ok(c)
}

func (h *Handler) authStatus(c *gin.Context) {
	sessions, err := h.svc.GetAuthStatus(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) respondSession(c *gin.Context, sess *models.PlatformSession, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) updateSession(c *gin.Context) {
	var req services.SessionRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Method == "" {
		req.Method = string(models.MethodManual)
	}
	sess, err := h.svc.UpdateSession(c.Request.Context(), c.Param("platform"), req.Cookies, req.Method)
	h.respondSession(c, sess, err)
}

func (h *Handler) importCurl(c *gin.Context) {
	var req services.SessionRequest
	if !h.bind(c, &req) {
		return
	}
	sess, err := h.svc.ImportCurl(c.Request.Context(), c.Param("platform"), req.Curl)
	h.respondSession(c, sess, err)
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("platform")); err != nil {
		h.fail(c, err)
		return
	}
	ok(c)
}

func (h *Handler) openLogin(c *gin.Context) {
	if err := h.svc.OpenLoginWindow(c.Request.Context(), c.Param("platform")); err != nil {
		h.fail(c, err)
		return
	}
	ok(c)
}

func (h *Handler) checkLogin(c *gin.Context) {
	sess, err := h.svc.CheckLogin(c.Request.Context(), c.Param("platform"))
	h.respondSession(c, sess, err)
}

func (h *Handler) importBrowser(c *gin.Context) {
	var req services.SessionRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Browser == "" {
		h.fail(c, fmt.Errorf("%w: browser", shared.ErrMissingArgument))
		return
	}
	sess, err := h.svc.ImportFromBrowser(c.Request.Context(), c.Param("platform"), req.Browser)
	h.respondSession(c, sess, err)
}

func (h *Handler) downloaderStatus(c *gin.Context) {
	info, err := h.svc.GetDownloaderStatus(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) updateDownloader(c *gin.Context) {
	h.logger.Info("updating downloader")
	info, err := h.svc.UpdateDownloader(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("downloader updated", "from", info.PreviousVersion, "to", info.Version)
	c.JSON(http.StatusOK, info)
}
