package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) Me(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
