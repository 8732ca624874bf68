package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sender roles for request messages.
const (
	RoleRequester = "requester"
	RoleHelper    = "helper"
	RoleSystem    = "system"
)

// Request message types.
const (
	MessageTypeText    = "text"
	MessageTypeContact = "contact"
	MessageTypeSystem  = "system"
)

// ContactMetadata carries masked contact derivatives. Raw phone numbers and
// email addresses are never placed on a RequestMessage.
type ContactMetadata struct {
	PhoneMasked string `bson:"phone_masked,omitempty" json:"phone_masked,omitempty"`
	EmailMasked string `bson:"email_masked,omitempty" json:"email_masked,omitempty"`
}

// RequestMessage is a chat message owned by a charging request. ExpiresAt
// drives the storage-level TTL index; expired messages are purged by the
// database, not the application.
type RequestMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequestID  primitive.ObjectID `bson:"request_id" json:"request_id"`
	SenderID   primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	SenderName string             `bson:"sender_name" json:"sender_name"`
	SenderRole string             `bson:"sender_role" json:"sender_role"`
	Type       string             `bson:"type" json:"type"`
	Text       string             `bson:"text" json:"text"`
	Metadata   *ContactMetadata   `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt  time.Time          `bson:"expires_at" json:"expires_at"`
}
