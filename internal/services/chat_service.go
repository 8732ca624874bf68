package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"evhelper/internal/models"
	"evhelper/internal/utils"
	"evhelper/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrChatClosed     = errors.New("chat is not available for this request")
	ErrNotParticipant = errors.New("you are not a participant in this request")
	ErrEmptyMessage   = errors.New("message is empty")
)

// MaxMessageLength caps chat text after whitespace normalization.
const MaxMessageLength = 500

// ChatService manages the per-request chat channel: authorization,
// message persistence with expiry, and contact sharing.
type ChatService struct {
	requests  *RequestService
	users     *UserService
	messages  *mongo.Collection
	retention time.Duration
}

func NewChatService(db *mongo.Database, requests *RequestService, users *UserService, retention time.Duration) *ChatService {
	return &ChatService{
		requests:  requests,
		users:     users,
		messages:  db.Collection("request_messages"),
		retention: retention,
	}
}

// NormalizeMessageText collapses runs of whitespace to single spaces, trims,
// and truncates to MaxMessageLength runes.
func NormalizeMessageText(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	runes := []rune(normalized)
	if len(runes) > MaxMessageLength {
		return string(runes[:MaxMessageLength])
	}
	return normalized
}

// Authorize checks that userID is a party to the request and that its chat
// channel is open. Returns the request and the caller's role. Identity is
// checked before the state gate, so an outsider always sees the
// participation error regardless of the request's status.
func (s *ChatService) Authorize(ctx context.Context, requestID, userID primitive.ObjectID) (*models.ChargingRequest, string, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, "", err
	}
	if !request.IsParty(userID) {
		return nil, "", ErrNotParticipant
	}
	if !request.Status.ChatOpen() {
		return nil, "", ErrChatClosed
	}

	role := models.RoleHelper
	if request.IsRequester(userID) {
		role = models.RoleRequester
	}
	return request, role, nil
}

// SendMessage validates, normalizes, and persists a chat text message.
func (s *ChatService) SendMessage(ctx context.Context, requestID, senderID primitive.ObjectID, text string) (*models.RequestMessage, error) {
	_, role, err := s.Authorize(ctx, requestID, senderID)
	if err != nil {
		return nil, err
	}

	normalized := NormalizeMessageText(text)
	if normalized == "" {
		return nil, ErrEmptyMessage
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	message := s.newMessage(requestID, sender, role, models.MessageTypeText, normalized, nil)
	if _, err := s.messages.InsertOne(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to store chat message: %w", err)
	}

	logger.LogChatEvent("chat_message", requestID.Hex(), senderID.Hex(), map[string]interface{}{
		"length": len(normalized),
	})
	return message, nil
}

// ShareContact persists a contact message carrying masked details only:
// the requester's masked phone comes from the request record, and the
// sender's masked email from their profile. Raw values never leave the
// server.
func (s *ChatService) ShareContact(ctx context.Context, requestID, senderID primitive.ObjectID) (*models.RequestMessage, error) {
	request, role, err := s.Authorize(ctx, requestID, senderID)
	if err != nil {
		return nil, err
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	metadata := &models.ContactMetadata{
		EmailMasked: utils.MaskEmail(sender.Email),
	}
	if role == models.RoleRequester {
		metadata.PhoneMasked = utils.MaskPhone(request.PhoneNumber)
	} else {
		metadata.PhoneMasked = utils.MaskPhone(sender.PhoneNumber)
	}

	text := fmt.Sprintf("%s shared contact details", sender.Name)
	message := s.newMessage(requestID, sender, role, models.MessageTypeContact, text, metadata)
	if _, err := s.messages.InsertOne(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to store contact message: %w", err)
	}

	logger.LogChatEvent("contact_shared", requestID.Hex(), senderID.Hex(), nil)
	return message, nil
}

// History returns the request's surviving messages in chronological order.
// Expired messages are removed by storage, so no time filter is needed here.
func (s *ChatService) History(ctx context.Context, requestID, userID primitive.ObjectID) ([]models.RequestMessage, error) {
	if _, _, err := s.Authorize(ctx, requestID, userID); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"request_id": requestID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.RequestMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode chat history: %w", err)
	}
	return messages, nil
}

func (s *ChatService) newMessage(requestID primitive.ObjectID, sender *models.User, role, messageType, text string, metadata *models.ContactMetadata) *models.RequestMessage {
	now := time.Now()
	return &models.RequestMessage{
		ID:         primitive.NewObjectID(),
		RequestID:  requestID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		SenderRole: role,
		Type:       messageType,
		Text:       text,
		Metadata:   metadata,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.retention),
	}
}
