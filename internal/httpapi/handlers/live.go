package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/haru-bank/internal/assistant"
	"github.com/suPer8Hu/haru-bank/internal/common"
	"github.com/suPer8Hu/haru-bank/internal/live"
	"go.uber.org/zap"
)

func (h *Handler) ConnectLive(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}

	err := a.Connect(c.Request.Context())
	switch {
	case err == nil:
		common.OK(c, a.LiveStatus())
	case errors.Is(err, live.ErrMicrophoneUnavailable):
		common.Fail(c, http.StatusConflict, 40902, err.Error())
	case errors.Is(err, assistant.ErrLiveUnsupported):
		common.Fail(c, http.StatusBadRequest, 10004, "voice is not available in mock mode")
	case errors.Is(err, assistant.ErrClosed):
		common.Fail(c, http.StatusGone, 41001, "session closed")
	default:
		h.Log.Warn("live connect failed", zap.String("session_id", a.ID()), zap.Error(err))
		common.Fail(c, http.StatusBadGateway, 50202, "failed to open voice session")
	}
}

func (h *Handler) DisconnectLive(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	a.Disconnect()
	common.OK(c, a.LiveStatus())
}

func (h *Handler) LiveStatus(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	common.OK(c, a.LiveStatus())
}

// LiveSocket upgrades to the device link: the browser streams microphone
// frames up and receives playback, status and transcripts down.
func (h *Handler) LiveSocket(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.Log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	link := live.NewLink(conn, a, live.LinkConfig{
		PingInterval:  h.Cfg.LiveWSPingInterval,
		WriteTimeout:  h.Cfg.LiveWSWriteTimeout,
		ReadTimeout:   h.Cfg.LiveWSReadTimeout,
		MaxFrameBytes: h.Cfg.LiveMaxFrameBytes,
		Logger:        h.Log.With(zap.String("session_id", a.ID())),
	})
	a.AttachDevice(link)
	defer a.DetachDevice(link)

	// later status and transcripts come from the session through live.Notifier
	link.NotifyStatus(a.LiveStatus())

	h.Log.Info("device link opened", zap.String("session_id", a.ID()))
	if err := link.Run(c.Request.Context()); err != nil {
		h.Log.Info("device link closed", zap.String("session_id", a.ID()), zap.Error(err))
	}
}
