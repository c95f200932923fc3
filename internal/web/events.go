package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/mediaq/internal/events"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// streamEvents relays bus events as server-sent events until the client goes away.
func (h *Handler) streamEvents(c *gin.Context) {
	var topics []events.Topic
	for _, name := range strings.Split(c.Query("topics"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			topics = append(topics, events.Topic(name))
		}
	}

	ctx := c.Request.Context()
	ch, err := h.svc.Subscribe(ctx, topics...)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(c.Writer, e); err != nil {
				h.logger.Warn("closing event stream", "error", err)
				return
			}
		case <-keepAlive.C:
			if _, err := io.WriteString(c.Writer, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		c.Writer.Flush()
	}
}

// writeEvent renders e as one SSE frame carrying its sequence number as the id.
func writeEvent(w io.Writer, e events.Event) error {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", e.Topic, err)
	}
	return sse.Encode(w, sse.Event{
		Id:    strconv.FormatUint(e.Seq, 10),
		Event: string(e.Topic),
		Data:  data,
	})
}
