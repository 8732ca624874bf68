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

type ChargingHandler struct {
	requests *services.RequestService
	users    *services.UserService
	charging config.ChargingConfig
}

func NewChargingHandler(requests *services.RequestService, users *services.UserService, charging config.ChargingConfig) *ChargingHandler {
	return &ChargingHandler{requests: requests, users: users, charging: charging}
}

type createRequestRequest struct {
	City        string `json:"city" binding:"required"`
	Location    string `json:"location" binding:"required,max=300"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

// Create opens a new charging request for the authenticated user.
func (h *ChargingHandler) Create(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid session identity")
		return
	}

	var req createRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request data: "+err.Error())
		return
	}

	request, err := h.requests.Create(c.Request.Context(), userID, req.City, req.Location, req.PhoneNumber, h.charging.DefaultTokenCost)
	if err != nil {
		if errors.Is(err, services.ErrAlreadyRequesting) {
			utils.ErrorResponse(c, http.StatusConflict, "You already have an open charging request")
			return
		}
		logger.WithError(err).Error("Request creation failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create charging request")
		return
	}

	utils.CreatedResponse(c, request)
}

// ListOpen returns OPEN requests in a city, excluding the caller's own.
// The city defaults to the caller's profile city.
func (h *ChargingHandler) ListOpen(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid session identity")
		return
	}

	city := c.Query("city")
	if city == "" {
		user, err := h.users.GetByID(c.Request.Context(), userID)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "City is required")
			return
		}
		city = user.City
	}

	requests, err := h.requests.OpenRequestsInCity(c.Request.Context(), city, userID)
	if err != nil {
		logger.WithError(err).Error("Open request listing failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list charging requests")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"city":     utils.NormalizeCityForMatch(city),
		"requests": requests,
	})
}

// ListMine returns the caller's requests on either side of the exchange.
func (h *ChargingHandler) ListMine(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid session identity")
		return
	}

	requests, err := h.requests.RequestsForUser(c.Request.Context(), userID)
	if err != nil {
		logger.WithError(err).Error("User request listing failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list your requests")
		return
	}

	utils.SuccessResponse(c, gin.H{"requests": requests})
}

// Complete finishes an accepted request: the conditional status write first,
// then the token transfer and the helper flag release. The two follow-up
// writes run after the transition commits and are logged, not rolled back,
// on failure.
func (h *ChargingHandler) Complete(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid session identity")
		return
	}

	requestID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request id")
		return
	}

	request, err := h.requests.Complete(c.Request.Context(), requestID, userID)
	if err != nil {
		var wrongStatus *services.WrongStatusError
		switch {
		case errors.Is(err, services.ErrRequestNotFound):
			utils.ErrorResponse(c, http.StatusNotFound, "Charging request not found")
		case errors.Is(err, services.ErrNotRequester):
			utils.ErrorResponse(c, http.StatusForbidden, "Only the requester may complete this request")
		case errors.As(err, &wrongStatus):
			utils.ErrorResponse(c, http.StatusConflict, wrongStatus.Error())
		default:
			logger.WithError(err).Error("Request completion failed")
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to complete charging request")
		}
		return
	}

	if request.HelperID != nil {
		if err := h.users.TransferTokens(c.Request.Context(), request.RequesterID, *request.HelperID, request.TokenCost); err != nil {
			logger.WithError(err).WithField("request_id", request.ID.Hex()).Error("Token transfer failed after completion")
		}
		if err := h.users.ClearHelperActive(c.Request.Context(), *request.HelperID); err != nil {
			logger.WithError(err).WithField("request_id", request.ID.Hex()).Error("Helper release failed after completion")
		}
	}

	utils.SuccessResponseWithMessage(c, "Charging request completed", request)
}
