package routes

import (
	"net/http"
	"time"

	"evhelper/internal/config"
	"evhelper/internal/handlers"
	"evhelper/internal/middleware"
	"evhelper/internal/services"
	ws "evhelper/internal/websocket"
	"evhelper/pkg/database"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// Setup wires services and handlers onto the router, including the
// realtime endpoint.
func Setup(router *gin.Engine, cfg *config.Config, db *mongo.Database, hub *ws.Hub) {
	users := services.NewUserService(db)
	requests := services.NewRequestService(db)
	accepts := services.NewAcceptService(requests, users)
	chat := services.NewChatService(db, requests, users, cfg.Chat.MessageRetention)

	deps := &ws.Deps{
		Users:    users,
		Requests: requests,
		Accepts:  accepts,
		Chat:     chat,
	}

	authHandler := handlers.NewAuthHandler(users, cfg.Security.JWT, cfg.Charging)
	chargingHandler := handlers.NewChargingHandler(requests, users, cfg.Charging)
	wsHandler := handlers.NewWebSocketHandler(hub, deps, cfg.Security.JWT, cfg.Server.WebSocket)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"database":  database.HealthCheck(),
			"timestamp": time.Now(),
		})
	})

	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(cfg.Security.JWT))
	{
		protected.GET("/auth/me", authHandler.Me)

		requestsGroup := protected.Group("/charging/requests")
		{
			requestsGroup.POST("", chargingHandler.Create)
			requestsGroup.GET("", chargingHandler.ListOpen)
			requestsGroup.GET("/mine", chargingHandler.ListMine)
			requestsGroup.POST("/:id/complete", chargingHandler.Complete)
		}
	}

	setupWebSocketRoutes(router, wsHandler)
}
