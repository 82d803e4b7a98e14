package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/haru-bank/internal/auth"
	"github.com/suPer8Hu/haru-bank/internal/common"
)

const SessionIDKey = "session_id"

// AuthRequired accepts "Authorization: Bearer <token>" or, for browsers
// opening a websocket or event stream, a ?token= query parameter.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearer(c.GetHeader("Authorization"))
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing token")
			return
		}

		sid, err := auth.ParseJWT(tokenString, secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			return
		}
		c.Set(SessionIDKey, sid)
		c.Next()
	}
}

func bearer(h string) string {
	parts := strings.SplitN(strings.TrimSpace(h), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
