package routes

import (
	"github.com/Singhary/chaty/api/handlers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func PublicApi(router *gin.Engine, h *handlers.Handlers) {
	router.GET("/healthz", h.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// SocialApi registers friend, group and profile routes on the authenticated group.
func SocialApi(api *gin.RouterGroup, h *handlers.Handlers) {
	api.GET("users/me", h.Me)

	api.POST("friends/add", h.AddFriend)
	api.POST("friends/accept", h.AcceptFriend)
	api.POST("friends/deny", h.DenyFriend)
	api.GET("friends/list", h.ListFriends)
	api.GET("friends/requests", h.ListFriendRequests)

	api.POST("groups/create", h.CreateGroup)
	api.POST("groups/make-admin", h.MakeAdmin)
	api.POST("groups/remove-member", h.RemoveMember)
	api.GET("groups/list", h.ListGroups)
	api.GET("groups/:id", h.GetGroup)
}
