package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/haru-bank/internal/assistant"
	"github.com/suPer8Hu/haru-bank/internal/common"
)

var heartbeatInterval = 15 * time.Second

// StreamEvents pushes state and realtime status changes as server-sent
// events. The first event is the current state.
func (h *Handler) StreamEvents(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, 50004, "streaming unsupported")
		return
	}

	events, cancel := a.Watch(64)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	st := a.Snapshot()
	writeJSON("state", stateView(st))
	writeJSON("live", a.LiveStatus())

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				writeJSON("closed", gin.H{"type": "closed"})
				return
			}
			switch ev.Kind {
			case assistant.EventState:
				writeJSON("state", stateView(*ev.State))
			case assistant.EventLive:
				writeJSON("live", ev.Live)
			}

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case <-ctx.Done():
			return
		}
	}
}
