package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RequestStatus enumerates the charging-request lifecycle states.
type RequestStatus string

const (
	StatusOpen      RequestStatus = "OPEN"
	StatusAccepted  RequestStatus = "ACCEPTED"
	StatusCompleted RequestStatus = "COMPLETED"
)

// Valid reports whether s is a known lifecycle state.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo validates a lifecycle transition. The only legal moves are
// OPEN -> ACCEPTED and ACCEPTED -> COMPLETED; a request is never reopened.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusAccepted
	case StatusAccepted:
		return next == StatusCompleted
	}
	return false
}

// ChatOpen reports whether the per-request chat channel is available.
func (s RequestStatus) ChatOpen() bool {
	return s == StatusAccepted || s == StatusCompleted
}

// ChargingRequest is a persisted emergency charging request.
type ChargingRequest struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RequesterID primitive.ObjectID  `bson:"requester_id" json:"requester_id"`
	City        string              `bson:"city" json:"city"`
	Location    string              `bson:"location,omitempty" json:"location,omitempty"`
	PhoneNumber string              `bson:"phone_number,omitempty" json:"-"`
	Status      RequestStatus       `bson:"status" json:"status"`
	HelperID    *primitive.ObjectID `bson:"helper_id" json:"helper_id,omitempty"`
	AcceptedAt  *time.Time          `bson:"accepted_at,omitempty" json:"accepted_at,omitempty"`
	CompletedAt *time.Time          `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	TokenCost   int                 `bson:"token_cost" json:"token_cost"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at" json:"updated_at"`
}

// IsRequester reports whether userID owns the request.
func (r *ChargingRequest) IsRequester(userID primitive.ObjectID) bool {
	return r.RequesterID == userID
}

// IsHelper reports whether userID is the assigned helper.
func (r *ChargingRequest) IsHelper(userID primitive.ObjectID) bool {
	return r.HelperID != nil && *r.HelperID == userID
}

// IsParty reports whether userID is one of the request's two parties.
func (r *ChargingRequest) IsParty(userID primitive.ObjectID) bool {
	return r.IsRequester(userID) || r.IsHelper(userID)
}

// CheckInvariants verifies the structural invariants of a request record.
// Returned errors indicate corrupt state, not user mistakes.
func (r *ChargingRequest) CheckInvariants() error {
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.Status == StatusOpen && r.HelperID != nil {
		return fmt.Errorf("OPEN request %s has a helper assigned", r.ID.Hex())
	}
	if r.Status != StatusOpen && r.HelperID == nil {
		return fmt.Errorf("%s request %s has no helper assigned", r.Status, r.ID.Hex())
	}
	if r.HelperID != nil && *r.HelperID == r.RequesterID {
		return fmt.Errorf("request %s is helped by its own requester", r.ID.Hex())
	}
	return nil
}
