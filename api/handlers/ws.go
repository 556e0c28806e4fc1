package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket upgrades the request and hands the connection to the hub.
func (h *Handlers) WebSocket(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	h.log.Debug("websocket connected", zap.String("user", u.ID))
	if err := h.hub.Serve(c.Request.Context(), u.ID, conn); err != nil {
		h.log.Debug("websocket closed", zap.String("user", u.ID), zap.Error(err))
	}
}
