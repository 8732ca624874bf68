package handlers

import (
	"errors"
	"net/http"

	"evhelper/internal/config"
	"evhelper/internal/services"
	"evhelper/internal/utils"
	"evhelper/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuthHandler struct {
	users    *services.UserService
	jwt      config.JWTConfig
	charging config.ChargingConfig
}

func NewAuthHandler(users *services.UserService, jwt config.JWTConfig, charging config.ChargingConfig) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, charging: charging}
}

type registerRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=100"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	City        string `json:"city" binding:"required"`
	PhoneNumber string `json:"phoneNumber"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account with the configured starting token balance
// and returns a signed token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid registration data: "+err.Error())
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Name, req.Email, req.Password, req.City, req.PhoneNumber, h.charging.StartingBalance)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			utils.ErrorResponse(c, http.StatusConflict, "An account with this email already exists")
			return
		}
		logger.WithError(err).Error("Registration failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create account")
		return
	}

	token, err := utils.GenerateUserJWT(h.jwt, user.ID.Hex(), user.Name)
	if err != nil {
		logger.WithError(err).Error("Token generation failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"token": token,
		"user":  user.Profile(),
	})
}

// Login verifies credentials and returns a signed token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid login data: "+err.Error())
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		logger.WithError(err).Error("Login failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	token, err := utils.GenerateUserJWT(h.jwt, user.ID.Hex(), user.Name)
	if err != nil {
		logger.WithError(err).Error("Token generation failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"token": token,
		"user":  user.Profile(),
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid session identity")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "User not found")
			return
		}
		logger.WithError(err).Error("Profile lookup failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to load profile")
		return
	}

	// Full own-account view; JSON tags keep the hash and raw phone out.
	utils.SuccessResponse(c, user)
}

// currentUserID reads the authenticated identity placed by the JWT middleware.
func currentUserID(c *gin.Context) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(c.GetString("user_id"))
}
