package middleware

import (
	"net/http"
	"strings"

	"evhelper/internal/config"
	"evhelper/internal/utils"

	"github.com/gin-gonic/gin"
)

// JWTAuth validates the bearer token and stores the caller's identity in the
// gin context under "user_id" and "user_name".
func JWTAuth(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authorization token required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateUserJWT(cfg, token)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// WebSocket clients cannot set headers from browsers, so the token may
	// arrive as a query parameter instead.
	return c.Query("token")
}
