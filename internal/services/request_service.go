package services

import (
	"context"
	"errors"
	"fmt"
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
	ErrRequestNotFound   = errors.New("charging request not found")
	ErrAlreadyRequesting = errors.New("you already have an open charging request")
	ErrNotRequester      = errors.New("only the requester may complete this request")
)

// WrongStatusError reports a state-gate violation along with the status the
// record actually held, for client messaging.
type WrongStatusError struct {
	Current models.RequestStatus
}

func (e *WrongStatusError) Error() string {
	return fmt.Sprintf("request is no longer available (status: %s)", e.Current)
}

type RequestService struct {
	db       *mongo.Database
	requests *mongo.Collection
}

func NewRequestService(db *mongo.Database) *RequestService {
	return &RequestService{
		db:       db,
		requests: db.Collection("charging_requests"),
	}
}

// Create inserts a new OPEN charging request. A requester may hold at most
// one OPEN request at a time.
func (s *RequestService) Create(ctx context.Context, requesterID primitive.ObjectID, city, location, phone string, tokenCost int) (*models.ChargingRequest, error) {
	count, err := s.requests.CountDocuments(ctx, bson.M{
		"requester_id": requesterID,
		"status":       models.StatusOpen,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing requests: %w", err)
	}
	if count > 0 {
		return nil, ErrAlreadyRequesting
	}

	now := time.Now()
	request := &models.ChargingRequest{
		ID:          primitive.NewObjectID(),
		RequesterID: requesterID,
		City:        utils.NormalizeCityForMatch(city),
		Location:    location,
		PhoneNumber: phone,
		Status:      models.StatusOpen,
		TokenCost:   tokenCost,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.requests.InsertOne(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create charging request: %w", err)
	}

	logger.LogUserAction(requesterID.Hex(), "charging_request_created", map[string]interface{}{
		"request_id": request.ID.Hex(),
		"city":       request.City,
		"token_cost": request.TokenCost,
	})

	return request, nil
}

// GetByID returns a request by id.
func (s *RequestService) GetByID(ctx context.Context, requestID primitive.ObjectID) (*models.ChargingRequest, error) {
	var request models.ChargingRequest
	err := s.requests.FindOne(ctx, bson.M{"_id": requestID}).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to look up request: %w", err)
	}
	return &request, nil
}

// OpenRequestsInCity returns OPEN requests matching the city
// (case-insensitive exact match on the normalized form), excluding the
// caller's own.
func (s *RequestService) OpenRequestsInCity(ctx context.Context, city string, exclude primitive.ObjectID) ([]models.ChargingRequest, error) {
	filter := bson.M{
		"status":       models.StatusOpen,
		"city":         utils.BuildCityExactMatchRegex(city),
		"requester_id": bson.M{"$ne": exclude},
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list open requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []models.ChargingRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode open requests: %w", err)
	}
	return requests, nil
}

// RequestsForUser returns requests where the user is a party, either side.
func (s *RequestService) RequestsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.ChargingRequest, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"requester_id": userID},
			{"helper_id": userID},
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list user requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []models.ChargingRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode user requests: %w", err)
	}
	return requests, nil
}

// TryAccept performs the single conditional atomic update that moves a
// request from OPEN to ACCEPTED. The filter is the concurrency control: the
// write applies only if, at the moment of the write, the request is still
// OPEN, unclaimed, and not owned by the helper. Exactly one concurrent
// caller can match; everyone else observes mongo.ErrNoDocuments and must
// not have mutated anything.
func (s *RequestService) TryAccept(ctx context.Context, requestID, helperID primitive.ObjectID) (*models.ChargingRequest, error) {
	now := time.Now()
	filter := bson.M{
		"_id":          requestID,
		"status":       models.StatusOpen,
		"requester_id": bson.M{"$ne": helperID},
		"helper_id":    nil,
	}
	update := bson.M{
		"$set": bson.M{
			"helper_id":   helperID,
			"status":      models.StatusAccepted,
			"accepted_at": now,
			"updated_at":  now,
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var request models.ChargingRequest
	err := s.requests.FindOneAndUpdate(ctx, filter, update, opts).Decode(&request)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Complete transitions an ACCEPTED request to COMPLETED. Only the original
// requester is authorized; the write is conditional on both identity and
// current status, and a zero-match is re-read to produce a specific error.
func (s *RequestService) Complete(ctx context.Context, requestID, callerID primitive.ObjectID) (*models.ChargingRequest, error) {
	now := time.Now()
	filter := bson.M{
		"_id":          requestID,
		"requester_id": callerID,
		"status":       models.StatusAccepted,
	}
	update := bson.M{
		"$set": bson.M{
			"status":       models.StatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var request models.ChargingRequest
	err := s.requests.FindOneAndUpdate(ctx, filter, update, opts).Decode(&request)
	if err == nil {
		logger.LogUserAction(callerID.Hex(), "charging_request_completed", map[string]interface{}{
			"request_id": requestID.Hex(),
		})
		return &request, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to complete request: %w", err)
	}

	// Zero match: re-read to say why.
	existing, getErr := s.GetByID(ctx, requestID)
	if getErr != nil {
		return nil, getErr
	}
	if !existing.IsRequester(callerID) {
		return nil, ErrNotRequester
	}
	return nil, &WrongStatusError{Current: existing.Status}
}
