package routes

import (
	"github.com/Singhary/chaty/api/handlers"
	"github.com/Singhary/chaty/api/middleware"
	"github.com/Singhary/chaty/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the engine with every route of the service.
func NewRouter(h *handlers.Handlers, users *services.UserService, auth middleware.AuthOptions, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.PrometheusMiddleware("chaty"))

	PublicApi(router, h)

	api := router.Group("/api/v1/")
	api.Use(middleware.AuthMiddleware(auth, users, log))
	SocialApi(api, h)
	MessagingApi(api, h)
	return router
}
