package httpapi

import (
	"log/slog"

	"chat-relay/infrastructure/ws"
	"chat-relay/services"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires the REST surface and the websocket upgrade. Gin runs in
// release mode unless the logger is at debug level.
func SetupRouter(handlers *Handlers, gateway *ws.Gateway,
	authSvc services.IAuthService, log *slog.Logger, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if debug {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/auth/register", handlers.Register)
		api.POST("/auth/login", handlers.Login)
		api.GET("/auth/users", RequireAuth(authSvc), handlers.ListUsers)

		messages := api.Group("/messages", RequireAuth(authSvc))
		messages.PUT("/:id", handlers.EditMessage)
		messages.DELETE("/:id", handlers.DeleteMessage)

		api.GET("/stats", handlers.Stats)
	}

	r.GET("/ws", gateway.Handle)
	return r
}
