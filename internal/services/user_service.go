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
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type UserService struct {
	db    *mongo.Database
	users *mongo.Collection
}

func NewUserService(db *mongo.Database) *UserService {
	return &UserService{
		db:    db,
		users: db.Collection("users"),
	}
}

// CreateUser registers a new user with a bcrypt-hashed password.
func (s *UserService) CreateUser(ctx context.Context, name, email, password, city, phone string, startingBalance int) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &models.User{
		ID:           primitive.NewObjectID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		City:         utils.NormalizeCityForMatch(city),
		PhoneNumber:  phone,
		TokenBalance: startingBalance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.LogUserAction(user.ID.Hex(), "user_registered", map[string]interface{}{
		"city": user.City,
	})

	return user, nil
}

// Authenticate verifies a credential pair and returns the matching user.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// GetByID returns a user by id.
func (s *UserService) GetByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &user, nil
}

// HelperAvailability is the result of the availability guard check.
type HelperAvailability struct {
	Available            bool
	CurrentActiveRequest *primitive.ObjectID
}

// CheckHelperAvailable reports whether a helper may take on a new request.
// This runs before any write to the request record so a known-busy helper
// short-circuits without touching anything. It is not atomic against
// concurrent accepts; the conditional write in the acceptance coordinator
// is the actual source of truth.
func (s *UserService) CheckHelperAvailable(ctx context.Context, helperID primitive.ObjectID) (*HelperAvailability, error) {
	helper, err := s.GetByID(ctx, helperID)
	if err != nil {
		return nil, err
	}

	if helper.IsActiveHelper && helper.CurrentActiveRequest != nil {
		return &HelperAvailability{
			Available:            false,
			CurrentActiveRequest: helper.CurrentActiveRequest,
		}, nil
	}

	return &HelperAvailability{Available: true}, nil
}

// MarkHelperActive flags the helper as busy with the given request.
func (s *UserService) MarkHelperActive(ctx context.Context, helperID, requestID primitive.ObjectID) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": helperID},
		bson.M{"$set": bson.M{
			"is_active_helper":       true,
			"current_active_request": requestID,
			"updated_at":             time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark helper active: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ClearHelperActive releases the helper's busy flag. This is the only
// release path; there is no timeout-based reaping.
func (s *UserService) ClearHelperActive(ctx context.Context, helperID primitive.ObjectID) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": helperID},
		bson.M{"$set": bson.M{
			"is_active_helper":       false,
			"current_active_request": nil,
			"updated_at":             time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to clear helper active flag: %w", err)
	}
	return nil
}

// TransferTokens moves the request's token cost from requester to helper.
// Each side is a single-record update; no multi-record transaction is used.
func (s *UserService) TransferTokens(ctx context.Context, requesterID, helperID primitive.ObjectID, amount int) error {
	if _, err := s.users.UpdateOne(ctx,
		bson.M{"_id": requesterID},
		bson.M{"$inc": bson.M{"token_balance": -amount}},
	); err != nil {
		return fmt.Errorf("failed to debit requester: %w", err)
	}

	if _, err := s.users.UpdateOne(ctx,
		bson.M{"_id": helperID},
		bson.M{"$inc": bson.M{"token_balance": amount}},
	); err != nil {
		return fmt.Errorf("failed to credit helper: %w", err)
	}

	return nil
}
