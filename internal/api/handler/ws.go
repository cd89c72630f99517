package handler

import (
	"chatline/backend/internal/apperr"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/chathub"
	"chatline/backend/internal/logger"

	"github.com/gin-gonic/gin"
)

// ServeWebSocket upgrades GET /ws?userId=<id>. With handshake verification
// on, the session token must belong to the claimed user.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" || userID == "undefined" {
		h.fail(c, badRequest("userId is required"))
		return
	}

	if h.cfg.WebSocket.VerifyHandshake {
		verified, err := h.tokens.Verify(auth.TokenFromRequest(c.Request))
		if err != nil || verified != userID {
			h.fail(c, apperr.Authentication(apperr.CodeUnauthorized, "unauthorized - token does not match user"))
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered the client
		l := logger.Ctx(c.Request.Context())
		l.Warn().Err(err).Str(logger.FieldUserID, userID).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, userID)
	client.Run()
}
