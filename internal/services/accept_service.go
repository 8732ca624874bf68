package services

import (
	"context"
	"errors"
	"fmt"

	"evhelper/internal/models"
	"evhelper/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// AcceptFailure names why an acceptance attempt did not win.
type AcceptFailure string

const (
	AcceptFailureNone           AcceptFailure = ""
	AcceptFailureAlreadyActive  AcceptFailure = "ALREADY_ACTIVE"
	AcceptFailureNotFound       AcceptFailure = "NOT_FOUND"
	AcceptFailureWrongStatus    AcceptFailure = "WRONG_STATUS"
	AcceptFailureSelfAcceptance AcceptFailure = "SELF_ACCEPTANCE"
	AcceptFailureAlreadyClaimed AcceptFailure = "ALREADY_CLAIMED"
	AcceptFailureServerError    AcceptFailure = "SERVER_ERROR"
)

// Reason returns the client-facing message for a failure.
func (f AcceptFailure) Reason() string {
	switch f {
	case AcceptFailureAlreadyActive:
		return "You already have an active charging request. Complete it before accepting another."
	case AcceptFailureNotFound:
		return "Charging request not found"
	case AcceptFailureWrongStatus:
		return "This request is no longer available"
	case AcceptFailureSelfAcceptance:
		return "You cannot accept your own charging request"
	case AcceptFailureAlreadyClaimed:
		return "This request has already been accepted by another helper"
	case AcceptFailureServerError:
		return "Failed to accept charging request"
	default:
		return ""
	}
}

// AcceptOutcome is the result of an acceptance attempt. On success Request
// is the post-write document; Warning is set when the follow-up helper
// flag write failed after the acceptance itself committed.
type AcceptOutcome struct {
	Accepted bool
	Failure  AcceptFailure

	// FailureStatus is the status observed while diagnosing a WrongStatus
	// failure, so callers can tell a completed request from a claimed one.
	FailureStatus models.RequestStatus

	// ConflictingRequest is the busy helper's current active request id,
	// set on AlreadyActive failures.
	ConflictingRequest *primitive.ObjectID

	Request *models.ChargingRequest
	Warning string
}

// Reason returns the client-facing message for the outcome, including the
// observed status when a state-gate rejection was diagnosed.
func (o AcceptOutcome) Reason() string {
	if o.Failure == AcceptFailureWrongStatus && o.FailureStatus != "" {
		return fmt.Sprintf("This request is no longer available (status: %s)", o.FailureStatus)
	}
	return o.Failure.Reason()
}

// AcceptService coordinates the acceptance protocol: availability guard,
// the atomic conditional claim, failure diagnosis, and the best-effort
// helper flag write.
type AcceptService struct {
	requests *RequestService
	users    *UserService
}

func NewAcceptService(requests *RequestService, users *UserService) *AcceptService {
	return &AcceptService{requests: requests, users: users}
}

// Accept runs one acceptance attempt for helperID against requestID.
// Concurrent callers race on the conditional write; exactly one wins.
func (s *AcceptService) Accept(ctx context.Context, requestID, helperID primitive.ObjectID) AcceptOutcome {
	availability, err := s.users.CheckHelperAvailable(ctx, helperID)
	if err != nil {
		logger.WithError(err).Error("Failed to check helper availability")
		return AcceptOutcome{Failure: AcceptFailureServerError}
	}
	if !availability.Available {
		return AcceptOutcome{
			Failure:            AcceptFailureAlreadyActive,
			ConflictingRequest: availability.CurrentActiveRequest,
		}
	}

	request, err := s.requests.TryAccept(ctx, requestID, helperID)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			logger.WithError(err).Error("Acceptance write failed")
			return AcceptOutcome{Failure: AcceptFailureServerError}
		}
		failure, status := s.diagnoseFailure(ctx, requestID, helperID)
		return AcceptOutcome{Failure: failure, FailureStatus: status}
	}

	return s.finalizeAccept(ctx, request, helperID)
}

// finalizeAccept runs the post-commit work for a won claim. The acceptance
// is already durable, so the helper flag write reports a warning on failure
// and never unwinds the transition.
func (s *AcceptService) finalizeAccept(ctx context.Context, request *models.ChargingRequest, helperID primitive.ObjectID) AcceptOutcome {
	logger.LogAcceptEvent("request_accepted", request.ID.Hex(), helperID.Hex(), map[string]interface{}{
		"requester_id": request.RequesterID.Hex(),
		"city":         request.City,
	})

	outcome := AcceptOutcome{Accepted: true, Request: request}

	if err := s.users.MarkHelperActive(ctx, helperID, request.ID); err != nil {
		logger.WithError(err).Warn("Failed to mark helper active after acceptance")
		outcome.Warning = "helper availability flag not updated"
	}

	return outcome
}

// diagnoseFailure re-reads the request after a zero-match conditional write
// and maps its state to a specific failure, with the observed status for
// state-gate rejections. The re-read is advisory: the record may have
// changed again since the write, but any answer it gives is a truthful
// description of some recent state.
func (s *AcceptService) diagnoseFailure(ctx context.Context, requestID, helperID primitive.ObjectID) (AcceptFailure, models.RequestStatus) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return AcceptFailureNotFound, ""
		}
		logger.WithError(err).Error("Failed to diagnose acceptance failure")
		return AcceptFailureServerError, ""
	}

	failure := ClassifyAcceptFailure(request, helperID)
	if failure == AcceptFailureWrongStatus {
		return failure, request.Status
	}
	return failure, ""
}

// ClassifyAcceptFailure decides, from a request snapshot, which filter
// clause rejected the helper's claim. Checks run in the same order the
// write filter evaluates them: status first, then self-acceptance, then
// an existing claim.
func ClassifyAcceptFailure(request *models.ChargingRequest, helperID primitive.ObjectID) AcceptFailure {
	if request.Status != models.StatusOpen {
		return AcceptFailureWrongStatus
	}
	if request.IsRequester(helperID) {
		return AcceptFailureSelfAcceptance
	}
	if request.HelperID != nil {
		return AcceptFailureAlreadyClaimed
	}
	return AcceptFailureServerError
}
