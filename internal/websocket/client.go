package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"evhelper/internal/models"
	"evhelper/internal/services"
	"evhelper/internal/utils"
	"evhelper/pkg/logger"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Buffer size for client send channel
	sendBufferSize = 64

	// Upper bound for a single event's downstream work
	handlerTimeout = 10 * time.Second
)

// Deps are the injected services event handlers dispatch into.
type Deps struct {
	Users    *services.UserService
	Requests *services.RequestService
	Accepts  *services.AcceptService
	Chat     *services.ChatService
}

// Client represents one authenticated WebSocket connection.
type Client struct {
	Conn *websocket.Conn
	Hub  *Hub
	Deps *Deps

	// Buffered channel of outbound payloads
	Send chan []byte

	UserID string
	Name   string

	// City membership, owned by the read pump
	City     string
	CityRoom string

	// Rooms this connection is in, guarded by the hub mutex
	rooms map[string]bool

	ConnectedAt time.Time
}

// NewClient wraps an upgraded connection. The caller must register it with
// the hub and start both pumps.
func NewClient(conn *websocket.Conn, hub *Hub, deps *Deps, userID, name string) *Client {
	return &Client{
		Conn:        conn,
		Hub:         hub,
		Deps:        deps,
		Send:        make(chan []byte, sendBufferSize),
		UserID:      userID,
		Name:        name,
		rooms:       make(map[string]bool),
		ConnectedAt: time.Now(),
	}
}

// deliver queues a payload without blocking the hub; slow consumers drop.
func (c *Client) deliver(payload []byte) {
	select {
	case c.Send <- payload:
	default:
		logger.WithField("user_id", c.UserID).Warn("Dropping event for slow connection")
	}
}

// ReadPump pumps events from the connection into the handlers.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
		logger.WithField("user_id", c.UserID).Info("WebSocket disconnected")
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	logger.WithField("user_id", c.UserID).Info("WebSocket connected")

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithFields(map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				}).Error("WebSocket read error")
			}
			break
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sendError("Invalid event format")
			continue
		}

		c.handleEvent(&event)
	}
}

// WritePump pumps queued payloads to the connection and keeps it alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleEvent(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch event.Type {
	case EventJoinCity:
		c.handleJoinCity(event.Data)
	case EventLeaveCity:
		c.handleLeaveCity()
	case EventChargingRequest:
		c.handleChargingRequest(ctx, event.Data)
	case EventAcceptRequest:
		c.handleAcceptRequest(ctx, event.Data)
	case EventJoinRequest:
		c.handleJoinRequest(ctx, event.Data)
	case EventLeaveRequest:
		c.handleLeaveRequest(event.Data)
	case EventChatMessage:
		c.handleChatMessage(ctx, event.Data)
	case EventShareContact:
		c.handleShareContact(ctx, event.Data)
	default:
		c.sendError("Unknown event type")
	}
}

func (c *Client) handleJoinCity(data json.RawMessage) {
	var payload joinCityPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("Invalid event format")
		return
	}

	slug := utils.SanitizeCityForRoom(payload.City)
	if slug == "" {
		c.sendError("City is required")
		return
	}

	if c.CityRoom != "" {
		c.Hub.SendToRoom(c.CityRoom, marshalEvent(EventUserLeftCity, map[string]interface{}{
			"userId": c.UserID,
			"name":   c.Name,
			"city":   c.City,
		}), c)
		c.Hub.LeaveRoom(c, c.CityRoom)
	}

	room := utils.CityRoomName(slug)
	c.Hub.JoinRoom(c, room)
	c.City = utils.NormalizeCityForMatch(payload.City)
	c.CityRoom = room

	c.sendEvent(EventCityJoined, map[string]interface{}{
		"city":     c.City,
		"roomName": room,
	})

	c.Hub.SendToRoom(room, marshalEvent(EventUserJoinedCity, map[string]interface{}{
		"userId": c.UserID,
		"name":   c.Name,
		"city":   c.City,
	}), c)

	logger.WithFields(map[string]interface{}{
		"user_id": c.UserID,
		"room":    room,
	}).Info("User joined city room")
}

func (c *Client) handleLeaveCity() {
	if c.CityRoom != "" {
		c.Hub.SendToRoom(c.CityRoom, marshalEvent(EventUserLeftCity, map[string]interface{}{
			"userId": c.UserID,
			"name":   c.Name,
			"city":   c.City,
		}), c)
		c.Hub.LeaveRoom(c, c.CityRoom)
		c.City = ""
		c.CityRoom = ""
	}

	c.sendEvent(EventCityLeft, map[string]interface{}{
		"message": "Successfully left city room",
	})
}

func (c *Client) handleChargingRequest(ctx context.Context, data json.RawMessage) {
	if c.CityRoom == "" {
		c.sendError("You must join a city room first")
		return
	}

	var payload requestRefPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("Invalid event format")
		return
	}

	requestID, err := primitive.ObjectIDFromHex(payload.RequestID)
	if err != nil {
		c.sendError("Invalid request id")
		return
	}

	// Announce the persisted record, not the caller's payload.
	request, err := c.Deps.Requests.GetByID(ctx, requestID)
	if err != nil {
		c.sendError("Charging request not found")
		return
	}
	if request.RequesterID.Hex() != c.UserID {
		c.sendError("You can only announce your own charging request")
		return
	}
	if request.Status != models.StatusOpen {
		c.sendError("This request is no longer open")
		return
	}

	// Whole room, sender included, so the requester sees the confirmation.
	c.Hub.SendToRoom(c.CityRoom, marshalEvent(EventChargingRequest, map[string]interface{}{
		"requestId":   request.ID.Hex(),
		"location":    request.Location,
		"tokenCost":   request.TokenCost,
		"requesterId": c.UserID,
		"city":        c.City,
	}), nil)
}

func (c *Client) handleAcceptRequest(ctx context.Context, data json.RawMessage) {
	// City membership is required up front so the post-accept fan-out
	// always has a room to inform.
	if c.CityRoom == "" {
		c.sendError("You must join a city room first")
		return
	}

	var payload requestRefPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("Invalid event format")
		return
	}

	requestID, err := primitive.ObjectIDFromHex(payload.RequestID)
	if err != nil {
		c.sendError("Invalid request id")
		return
	}
	helperID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		c.sendError("Invalid session identity")
		return
	}

	outcome := c.Deps.Accepts.Accept(ctx, requestID, helperID)
	if !outcome.Accepted {
		failed := map[string]interface{}{
			"requestId": payload.RequestID,
			"reason":    outcome.Reason(),
		}
		if outcome.FailureStatus != "" {
			failed["status"] = outcome.FailureStatus
		}
		if outcome.ConflictingRequest != nil {
			failed["currentActiveRequest"] = outcome.ConflictingRequest.Hex()
		}
		c.sendEvent(EventAcceptFailed, failed)
		return
	}

	request := outcome.Request

	requester, err := c.Deps.Users.GetByID(ctx, request.RequesterID)
	if err != nil {
		logger.WithError(err).Error("Failed to load requester for acceptance fan-out")
	}
	helper, err := c.Deps.Users.GetByID(ctx, helperID)
	if err != nil {
		logger.WithError(err).Error("Failed to load helper for acceptance fan-out")
	}

	accepted := map[string]interface{}{
		"id":         request.ID.Hex(),
		"status":     request.Status,
		"acceptedAt": request.AcceptedAt,
	}
	if helper != nil {
		accepted["helperId"] = helper.ID.Hex()
		accepted["helperName"] = helper.Name
		accepted["helperEmail"] = helper.Email
	}
	c.Hub.SendToUser(request.RequesterID.Hex(), marshalEvent(EventRequestAccepted, map[string]interface{}{
		"request": accepted,
	}))

	confirmed := map[string]interface{}{
		"id":         request.ID.Hex(),
		"status":     request.Status,
		"acceptedAt": request.AcceptedAt,
	}
	if requester != nil {
		confirmed["requesterId"] = requester.ID.Hex()
		confirmed["requesterName"] = requester.Name
		confirmed["requesterEmail"] = requester.Email
		confirmed["requesterCity"] = requester.City
	}
	c.sendEvent(EventAcceptConfirmed, map[string]interface{}{
		"request": confirmed,
	})

	c.Hub.SendToRoom(c.CityRoom, marshalEvent(EventRequestTaken, map[string]interface{}{
		"requestId":  request.ID.Hex(),
		"message":    "Charging request in " + c.City + " has been accepted",
		"status":     request.Status,
		"acceptedAt": request.AcceptedAt,
	}), c)

	notification := map[string]interface{}{
		"requestId": request.ID.Hex(),
		"message":   "A charging request has been accepted in " + c.City,
	}
	if requester != nil {
		notification["requesterName"] = requester.Name
	}
	if helper != nil {
		notification["helperName"] = helper.Name
	}
	c.Hub.SendToRoom(c.CityRoom, marshalEvent(EventAcceptNotification, notification), nil)
}

func (c *Client) handleJoinRequest(ctx context.Context, data json.RawMessage) {
	var payload requestRefPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("Invalid event format")
		return
	}

	requestID, err := primitive.ObjectIDFromHex(payload.RequestID)
	if err != nil {
		c.sendError("Invalid request id")
		return
	}
	userID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		c.sendError("Invalid session identity")
		return
	}

	_, role, err := c.Deps.Chat.Authorize(ctx, requestID, userID)
	if err != nil {
		c.sendError(chatErrorMessage(err))
		return
	}

	room := utils.RequestRoomName(payload.RequestID)
	c.Hub.JoinRoom(c, room)

	messages, err := c.Deps.Chat.History(ctx, requestID, userID)
	if err != nil {
		logger.WithError(err).Error("Failed to load chat history")
		messages = nil
	}
	if messages == nil {
		messages = []models.RequestMessage{}
	}

	c.sendEvent(EventRequestJoined, map[string]interface{}{
		"requestId": payload.RequestID,
		"role":      role,
		"messages":  messages,
	})
}

func (c *Client) handleLeaveRequest(data json.RawMessage) {
	var payload requestRefPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	// Best effort, no reply.
	c.Hub.LeaveRoom(c, utils.RequestRoomName(payload.RequestID))
}

func (c *Client) handleChatMessage(ctx context.Context, data json.RawMessage) {
	var payload chatMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("Invalid event format")
		return
	}

	requestID, err := primitive.ObjectIDFromHex(payload.RequestID)
	if err != nil {
		c.sendError("Invalid request id")
		return
	}
	senderID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		c.sendError("Invalid session identity")
		return
	}

	message, err := c.Deps.Chat.SendMessage(ctx, requestID, senderID, payload.Text)
	if err != nil {
		c.sendError(chatErrorMessage(err))
		return
	}

	c.Hub.SendToRoom(utils.RequestRoomName(payload.RequestID), marshalEvent(EventChatMessage, map[string]interface{}{
		"requestId": payload.RequestID,
		"message":   message,
	}), nil)
}

func (c *Client) handleShareContact(ctx context.Context, data json.RawMessage) {
	var payload requestRefPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("Invalid event format")
		return
	}

	requestID, err := primitive.ObjectIDFromHex(payload.RequestID)
	if err != nil {
		c.sendError("Invalid request id")
		return
	}
	senderID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		c.sendError("Invalid session identity")
		return
	}

	message, err := c.Deps.Chat.ShareContact(ctx, requestID, senderID)
	if err != nil {
		c.sendError(chatErrorMessage(err))
		return
	}

	c.Hub.SendToRoom(utils.RequestRoomName(payload.RequestID), marshalEvent(EventChatMessage, map[string]interface{}{
		"requestId": payload.RequestID,
		"message":   message,
	}), nil)
}

func chatErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrRequestNotFound):
		return "Charging request not found"
	case errors.Is(err, services.ErrChatClosed):
		return "Chat is not available until the request is accepted"
	case errors.Is(err, services.ErrNotParticipant):
		return "You are not a participant in this request"
	case errors.Is(err, services.ErrEmptyMessage):
		return "Message cannot be empty"
	default:
		logger.WithError(err).Error("Chat operation failed")
		return "Failed to process chat message"
	}
}

func (c *Client) sendEvent(eventType EventType, payload interface{}) {
	if raw := marshalEvent(eventType, payload); raw != nil {
		c.deliver(raw)
	}
}

func (c *Client) sendError(message string) {
	c.sendEvent(EventError, map[string]interface{}{
		"message": message,
	})
}
