package handlers

import (
	"net/http"
	"strings"

	"evhelper/internal/config"
	"evhelper/internal/utils"
	ws "evhelper/internal/websocket"
	"evhelper/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocketHandler authenticates and upgrades real-time connections.
type WebSocketHandler struct {
	hub      *ws.Hub
	deps     *ws.Deps
	jwt      config.JWTConfig
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, deps *ws.Deps, jwt config.JWTConfig, wsCfg config.WebSocketConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub:  hub,
		deps: deps,
		jwt:  jwt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsCfg.ReadBufferSize,
			WriteBufferSize: wsCfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection verifies the bearer credential before upgrading; an
// absent or invalid token is rejected with 401 and no event handling.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = ""
		}
	}
	if token == "" {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authorization token required")
		return
	}

	claims, err := utils.ValidateUserJWT(h.jwt, token)
	if err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, h.hub, h.deps, claims.UserID, claims.Name)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
