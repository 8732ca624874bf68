package routes

import (
	"evhelper/internal/handlers"

	"github.com/gin-gonic/gin"
)

// setupWebSocketRoutes exposes the realtime endpoint. Authentication happens
// inside the handler so the token can arrive as a query parameter.
func setupWebSocketRoutes(router *gin.Engine, wsHandler *handlers.WebSocketHandler) {
	router.GET("/ws", wsHandler.HandleConnection)
}
