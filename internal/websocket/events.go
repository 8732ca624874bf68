package websocket

import (
	"encoding/json"
	"time"

	"evhelper/pkg/logger"
)

// EventType names a real-time event on the wire.
type EventType string

const (
	// Inbound events
	EventJoinCity        EventType = "join-city"
	EventLeaveCity       EventType = "leave-city"
	EventChargingRequest EventType = "charging-request"
	EventAcceptRequest   EventType = "accept-charging-request"
	EventJoinRequest     EventType = "join-request"
	EventLeaveRequest    EventType = "leave-request"
	EventChatMessage     EventType = "chat-message"
	EventShareContact    EventType = "share-contact"

	// Outbound events
	EventCityJoined         EventType = "city-joined"
	EventCityLeft           EventType = "city-left"
	EventUserJoinedCity     EventType = "user-joined-city"
	EventUserLeftCity       EventType = "user-left-city"
	EventRequestAccepted    EventType = "charging-request-accepted"
	EventAcceptConfirmed    EventType = "accept-confirmed"
	EventRequestTaken       EventType = "request-taken"
	EventAcceptNotification EventType = "request-accepted-notification"
	EventAcceptFailed       EventType = "accept-failed"
	EventRequestJoined      EventType = "request-joined"
	EventError              EventType = "error"
)

// Event is the wire envelope for both directions.
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Inbound payloads.
type joinCityPayload struct {
	City string `json:"city"`
}

// requestRefPayload covers every inbound event that names a request.
type requestRefPayload struct {
	RequestID string `json:"requestId"`
}

type chatMessagePayload struct {
	RequestID string `json:"requestId"`
	Text      string `json:"text"`
}

// marshalEvent builds the wire bytes for an outbound event. Payload marshal
// failures are a programming error; they are logged and yield nil so the
// caller drops the event instead of sending garbage.
func marshalEvent(eventType EventType, payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).WithField("event", string(eventType)).Error("Failed to marshal event payload")
		return nil
	}

	raw, err := json.Marshal(Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.WithError(err).WithField("event", string(eventType)).Error("Failed to marshal event")
		return nil
	}
	return raw
}
