package services

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"evhelper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestClassifyAcceptFailure(t *testing.T) {
	requester := primitive.NewObjectID()
	helper := primitive.NewObjectID()
	other := primitive.NewObjectID()

	t.Run("accepted request reports wrong status", func(t *testing.T) {
		request := &models.ChargingRequest{
			RequesterID: requester,
			Status:      models.StatusAccepted,
			HelperID:    &other,
		}
		assert.Equal(t, AcceptFailureWrongStatus, ClassifyAcceptFailure(request, helper))
	})

	t.Run("completed request reports wrong status", func(t *testing.T) {
		request := &models.ChargingRequest{
			RequesterID: requester,
			Status:      models.StatusCompleted,
			HelperID:    &other,
		}
		assert.Equal(t, AcceptFailureWrongStatus, ClassifyAcceptFailure(request, helper))
	})

	t.Run("requester accepting own request", func(t *testing.T) {
		request := &models.ChargingRequest{
			RequesterID: requester,
			Status:      models.StatusOpen,
		}
		assert.Equal(t, AcceptFailureSelfAcceptance, ClassifyAcceptFailure(request, requester))
	})

	t.Run("open request with helper already set", func(t *testing.T) {
		request := &models.ChargingRequest{
			RequesterID: requester,
			Status:      models.StatusOpen,
			HelperID:    &other,
		}
		assert.Equal(t, AcceptFailureAlreadyClaimed, ClassifyAcceptFailure(request, helper))
	})

	t.Run("status outranks self-acceptance", func(t *testing.T) {
		request := &models.ChargingRequest{
			RequesterID: requester,
			Status:      models.StatusAccepted,
			HelperID:    &other,
		}
		assert.Equal(t, AcceptFailureWrongStatus, ClassifyAcceptFailure(request, requester))
	})
}

func TestAcceptFailureReasons(t *testing.T) {
	failures := []AcceptFailure{
		AcceptFailureAlreadyActive,
		AcceptFailureNotFound,
		AcceptFailureWrongStatus,
		AcceptFailureSelfAcceptance,
		AcceptFailureAlreadyClaimed,
		AcceptFailureServerError,
	}
	for _, f := range failures {
		assert.NotEmpty(t, f.Reason(), "failure %s must carry a reason", f)
	}
	assert.Empty(t, AcceptFailureNone.Reason())
}

func TestAcceptOutcomeReasonCarriesObservedStatus(t *testing.T) {
	completed := AcceptOutcome{
		Failure:       AcceptFailureWrongStatus,
		FailureStatus: models.StatusCompleted,
	}
	assert.Contains(t, completed.Reason(), "COMPLETED")

	accepted := AcceptOutcome{
		Failure:       AcceptFailureWrongStatus,
		FailureStatus: models.StatusAccepted,
	}
	assert.Contains(t, accepted.Reason(), "ACCEPTED")

	// A state-gate rejection must read differently from an observed claim,
	// so callers can tell retry-later from give-up.
	claimed := AcceptOutcome{Failure: AcceptFailureAlreadyClaimed}
	assert.NotEqual(t, completed.Reason(), claimed.Reason())
	assert.NotEqual(t, accepted.Reason(), claimed.Reason())
}

func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	})

	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("evhelper_test")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
	})

	return db
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	users := NewUserService(db)
	requests := NewRequestService(db)
	accepts := NewAcceptService(requests, users)

	requester, err := users.CreateUser(ctx, "Requester", "requester@example.com", "secret123", "Berlin", "+49 170 0000001", 20)
	require.NoError(t, err)

	request, err := requests.Create(ctx, requester.ID, "Berlin", "Alexanderplatz parking deck", "+49 170 0000001", 5)
	require.NoError(t, err)

	const helpers = 8
	helperIDs := make([]primitive.ObjectID, helpers)
	for i := 0; i < helpers; i++ {
		helper, err := users.CreateUser(ctx, "Helper", primitive.NewObjectID().Hex()+"@example.com", "secret123", "Berlin", "", 20)
		require.NoError(t, err)
		helperIDs[i] = helper.ID
	}

	outcomes := make([]AcceptOutcome, helpers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < helpers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			outcomes[i] = accepts.Accept(ctx, request.ID, helperIDs[i])
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	var winner primitive.ObjectID
	for i, outcome := range outcomes {
		if outcome.Accepted {
			winners++
			winner = helperIDs[i]
			require.NotNil(t, outcome.Request.HelperID)
			assert.Equal(t, helperIDs[i], *outcome.Request.HelperID)
			assert.Equal(t, models.StatusAccepted, outcome.Request.Status)
		} else {
			assert.Contains(t, []AcceptFailure{AcceptFailureWrongStatus, AcceptFailureAlreadyClaimed}, outcome.Failure)
			if outcome.Failure == AcceptFailureWrongStatus {
				assert.Equal(t, models.StatusAccepted, outcome.FailureStatus)
			}
		}
	}
	require.Equal(t, 1, winners, "exactly one helper must win the race")

	stored, err := requests.GetByID(ctx, request.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.HelperID)
	assert.Equal(t, winner, *stored.HelperID)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	require.NoError(t, stored.CheckInvariants())
}

func TestAcceptGuardsAndDiagnostics(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	users := NewUserService(db)
	requests := NewRequestService(db)
	accepts := NewAcceptService(requests, users)

	requester, err := users.CreateUser(ctx, "Requester", "req2@example.com", "secret123", "Hamburg", "+49 170 0000002", 20)
	require.NoError(t, err)
	helper, err := users.CreateUser(ctx, "Helper", "helper2@example.com", "secret123", "Hamburg", "", 20)
	require.NoError(t, err)

	request, err := requests.Create(ctx, requester.ID, "Hamburg", "Hafencity garage", "+49 170 0000002", 5)
	require.NoError(t, err)

	t.Run("second open request is rejected", func(t *testing.T) {
		_, err := requests.Create(ctx, requester.ID, "Hamburg", "Altona charger", "+49 170 0000002", 5)
		assert.ErrorIs(t, err, ErrAlreadyRequesting)
	})

	t.Run("self acceptance is rejected", func(t *testing.T) {
		outcome := accepts.Accept(ctx, request.ID, requester.ID)
		assert.False(t, outcome.Accepted)
		assert.Equal(t, AcceptFailureSelfAcceptance, outcome.Failure)
	})

	t.Run("unknown request reports not found", func(t *testing.T) {
		outcome := accepts.Accept(ctx, primitive.NewObjectID(), helper.ID)
		assert.False(t, outcome.Accepted)
		assert.Equal(t, AcceptFailureNotFound, outcome.Failure)
	})

	t.Run("busy helper is turned away before the write", func(t *testing.T) {
		outcome := accepts.Accept(ctx, request.ID, helper.ID)
		require.True(t, outcome.Accepted)

		other, err := users.CreateUser(ctx, "Other", "other2@example.com", "secret123", "Hamburg", "+49 170 0000003", 20)
		require.NoError(t, err)
		otherRequest, err := requests.Create(ctx, other.ID, "Hamburg", "Altona charger", "+49 170 0000003", 5)
		require.NoError(t, err)

		busy := accepts.Accept(ctx, otherRequest.ID, helper.ID)
		assert.False(t, busy.Accepted)
		assert.Equal(t, AcceptFailureAlreadyActive, busy.Failure)
		require.NotNil(t, busy.ConflictingRequest)
		assert.Equal(t, request.ID, *busy.ConflictingRequest)
	})

	t.Run("state-gate rejection reports the observed status", func(t *testing.T) {
		late, err := users.CreateUser(ctx, "Late", "late2@example.com", "secret123", "Hamburg", "", 20)
		require.NoError(t, err)

		outcome := accepts.Accept(ctx, request.ID, late.ID)
		assert.False(t, outcome.Accepted)
		assert.Equal(t, AcceptFailureWrongStatus, outcome.Failure)
		assert.Equal(t, models.StatusAccepted, outcome.FailureStatus)
		assert.Contains(t, outcome.Reason(), "ACCEPTED")
	})
}

func TestAcceptWarnsWhenHelperFlagWriteFails(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	users := NewUserService(db)
	requests := NewRequestService(db)
	accepts := NewAcceptService(requests, users)

	requester, err := users.CreateUser(ctx, "Requester", "req4@example.com", "secret123", "Frankfurt", "+49 170 0000005", 20)
	require.NoError(t, err)

	request, err := requests.Create(ctx, requester.ID, "Frankfurt", "Hauptbahnhof garage", "+49 170 0000005", 5)
	require.NoError(t, err)

	// Claim under an id with no user record, so the follow-up flag write
	// matches nothing and fails after the transition has committed.
	ghost := primitive.NewObjectID()
	claimed, err := requests.TryAccept(ctx, request.ID, ghost)
	require.NoError(t, err)

	outcome := accepts.finalizeAccept(ctx, claimed, ghost)
	assert.True(t, outcome.Accepted)
	assert.NotEmpty(t, outcome.Warning)
	require.NotNil(t, outcome.Request)

	// The committed acceptance is not unwound by the failed flag write.
	stored, err := requests.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	require.NotNil(t, stored.HelperID)
	assert.Equal(t, ghost, *stored.HelperID)
}

func TestCompleteTransfersAndReleasesHelper(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	users := NewUserService(db)
	requests := NewRequestService(db)
	accepts := NewAcceptService(requests, users)

	requester, err := users.CreateUser(ctx, "Requester", "req3@example.com", "secret123", "Munich", "+49 170 0000004", 20)
	require.NoError(t, err)
	helper, err := users.CreateUser(ctx, "Helper", "helper3@example.com", "secret123", "Munich", "", 20)
	require.NoError(t, err)

	request, err := requests.Create(ctx, requester.ID, "Munich", "Marienplatz garage", "+49 170 0000004", 5)
	require.NoError(t, err)

	outcome := accepts.Accept(ctx, request.ID, helper.ID)
	require.True(t, outcome.Accepted)

	t.Run("helper cannot complete", func(t *testing.T) {
		_, err := requests.Complete(ctx, request.ID, helper.ID)
		assert.ErrorIs(t, err, ErrNotRequester)
	})

	completed, err := requests.Complete(ctx, request.ID, requester.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	require.NoError(t, users.TransferTokens(ctx, requester.ID, helper.ID, completed.TokenCost))
	require.NoError(t, users.ClearHelperActive(ctx, helper.ID))

	reqUser, err := users.GetByID(ctx, requester.ID)
	require.NoError(t, err)
	helpUser, err := users.GetByID(ctx, helper.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, reqUser.TokenBalance)
	assert.Equal(t, 25, helpUser.TokenBalance)
	assert.False(t, helpUser.IsActiveHelper)
	assert.Nil(t, helpUser.CurrentActiveRequest)

	t.Run("completing twice reports the current status", func(t *testing.T) {
		_, err := requests.Complete(ctx, request.ID, requester.ID)
		var wrongStatus *WrongStatusError
		require.ErrorAs(t, err, &wrongStatus)
		assert.Equal(t, models.StatusCompleted, wrongStatus.Current)
	})
}
