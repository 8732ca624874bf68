package main

import (
	"log"

	"evhelper/internal/config"
	"evhelper/internal/middleware"
	"evhelper/internal/routes"
	"evhelper/internal/websocket"
	"evhelper/pkg/database"
	"evhelper/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger.Init()

	// Load configuration
	cfg := config.Load()

	// Initialize database
	if err := database.InitMongoDB(cfg.Database.MongoDB); err != nil {
		logger.Fatal("Failed to connect to MongoDB: " + err.Error())
	}
	defer database.Disconnect()

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize Gin router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.CORS(cfg.Server.CORS))

	// Setup routes
	routes.Setup(router, cfg, database.GetDatabase(), hub)

	addr := cfg.Server.HTTP.Host + ":" + cfg.Server.HTTP.Port
	logger.Info("Server starting on " + addr)
	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server: " + err.Error())
	}
}
