package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/haru-bank/internal/common"
	"github.com/suPer8Hu/haru-bank/internal/config"
	"github.com/suPer8Hu/haru-bank/internal/httpapi/handlers"
	"github.com/suPer8Hu/haru-bank/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *handlers.Handler, cfg config.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.POST("/sessions", h.CreateSession)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))

	// session and screens
	authGroup.DELETE("/sessions/current", h.DeleteSession)
	authGroup.GET("/state", h.GetState)
	authGroup.PATCH("/debug", h.UpdateDebug)
	authGroup.PATCH("/ui", h.UpdateUI)
	authGroup.POST("/navigate", h.Navigate)
	authGroup.POST("/forms/:form", h.SubmitForm)

	// ledger
	authGroup.POST("/ledger/:kind", h.Book)
	authGroup.GET("/ledger/events", h.ListLedgerEvents)
	authGroup.POST("/offer/lock", h.LockOffer)

	// chat
	authGroup.GET("/chat/messages", h.ListChatMessages)
	authGroup.POST("/chat/messages", h.SendChatMessage)
	authGroup.POST("/chat/restart", h.RestartChat)

	// voice
	authGroup.POST("/live/connect", h.ConnectLive)
	authGroup.POST("/live/disconnect", h.DisconnectLive)
	authGroup.GET("/live/status", h.LiveStatus)
	authGroup.GET("/live/ws", h.LiveSocket)

	authGroup.GET("/events", h.StreamEvents)
	return r
}
