package routes

import (
	"github.com/Singhary/chaty/api/handlers"

	"github.com/gin-gonic/gin"
)

// MessagingApi registers message routes and the WebSocket endpoint.
func MessagingApi(api *gin.RouterGroup, h *handlers.Handlers) {
	api.POST("message/send", h.SendMessage)
	api.GET("chats/:chatId/messages", h.ListChatMessages)
	api.POST("groups/message", h.SendGroupMessage)
	api.GET("groups/:id/messages", h.ListGroupMessages)
	api.GET("ws", h.WebSocket)
}
