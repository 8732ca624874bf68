package websocket

import (
	"sync"

	"evhelper/pkg/logger"
)

// Hub maintains the set of active clients and routes outbound events.
// It is a pure dispatch layer: payloads are delivered verbatim to one of
// three address classes (a single connection, every connection of a user,
// every connection in a room) and all validation happens upstream.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Connections organized by user ID; a user may hold several at once
	userClients map[string]map[*Client]bool

	// Connections organized by room name (city-* and request-* rooms)
	roomClients map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Broadcast to a specific room
	RoomBroadcast chan *RoomMessage

	// Broadcast to all connections of a specific user
	UserBroadcast chan *UserMessage

	mu sync.RWMutex
}

// RoomMessage addresses every connection in a room, optionally excluding one.
type RoomMessage struct {
	Room    string
	Payload []byte
	Exclude *Client
}

// UserMessage addresses every connection of a user.
type UserMessage struct {
	UserID  string
	Payload []byte
}

// NewHub creates a hub ready to Run.
func NewHub() *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		userClients:   make(map[string]map[*Client]bool),
		roomClients:   make(map[string]map[*Client]bool),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		RoomBroadcast: make(chan *RoomMessage),
		UserBroadcast: make(chan *UserMessage),
	}
}

// Run processes registration and broadcast traffic until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case roomMsg := <-h.RoomBroadcast:
			h.broadcastToRoom(roomMsg)

		case userMsg := <-h.UserBroadcast:
			h.broadcastToUser(userMsg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if h.userClients[client.UserID] == nil {
		h.userClients[client.UserID] = make(map[*Client]bool)
	}
	h.userClients[client.UserID][client] = true

	logger.WithFields(map[string]interface{}{
		"user_id":     client.UserID,
		"connections": len(h.userClients[client.UserID]),
	}).Debug("Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	delete(h.clients, client)

	if conns := h.userClients[client.UserID]; conns != nil {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.userClients, client.UserID)
		}
	}

	for room := range client.rooms {
		h.removeFromRoomLocked(client, room)
	}

	close(client.Send)

	logger.WithField("user_id", client.UserID).Debug("Client unregistered")
}

// JoinRoom adds the client to a named room.
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.roomClients[room] == nil {
		h.roomClients[room] = make(map[*Client]bool)
	}
	h.roomClients[room][client] = true
	client.rooms[room] = true
}

// LeaveRoom removes the client from a named room. Leaving a room the client
// is not in is a no-op.
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomLocked(client, room)
}

func (h *Hub) removeFromRoomLocked(client *Client, room string) {
	delete(client.rooms, room)
	members := h.roomClients[room]
	if members == nil {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.roomClients, room)
	}
}

// RoomSize reports the current number of connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.roomClients[room])
}

// SendToRoom delivers a payload to every connection in a room, skipping
// exclude when non-nil. Dispatch is serialized through Run.
func (h *Hub) SendToRoom(room string, payload []byte, exclude *Client) {
	if payload == nil {
		return
	}
	h.RoomBroadcast <- &RoomMessage{Room: room, Payload: payload, Exclude: exclude}
}

// SendToUser delivers a payload to every connection of a user.
func (h *Hub) SendToUser(userID string, payload []byte) {
	if payload == nil {
		return
	}
	h.UserBroadcast <- &UserMessage{UserID: userID, Payload: payload}
}

func (h *Hub) broadcastToRoom(msg *RoomMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.roomClients[msg.Room] {
		if client == msg.Exclude {
			continue
		}
		client.deliver(msg.Payload)
	}
}

func (h *Hub) broadcastToUser(msg *UserMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.userClients[msg.UserID] {
		client.deliver(msg.Payload)
	}
}
