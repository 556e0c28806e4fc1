package handlers

import (
	"context"
	"net/http"

	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/services"

	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

func (h *Handlers) SendMessage(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := bind(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	var msg *models.Message
	err := run(c.Request.Context(), "direct_message", func(ctx context.Context) (err error) {
		msg, err = h.messages.SendDirectMessage(ctx, u.ID, req.ChatID, req.Text)
		return err
	})
	writeResult(h, c, "message", msg, err)
}

// ListChatMessages returns the conversation log newest first, together with
// the counterpart's profile.
func (h *Handlers) ListChatMessages(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	limit, err := limitParam(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	chatID := c.Param("chatId")
	if err := h.messages.CanAccessChat(c.Request.Context(), chatID, u.ID); err != nil {
		h.writeError(c, err)
		return
	}
	friendID, _ := services.Counterpart(chatID, u.ID)
	partner, err := h.users.Get(c.Request.Context(), friendID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	messages, err := h.messages.ListDirectMessages(c.Request.Context(), chatID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partner": partner, "messages": services.ForDisplay(messages)})
}
