package services

import (
	"context"
	"testing"

	"evhelper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestOpenRequestsInCityMatchingAndExclusion(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	users := NewUserService(db)
	requests := NewRequestService(db)

	alice, err := users.CreateUser(ctx, "Alice", "alice-city@example.com", "secret123", "New York", "+1 212 5550101", 20)
	require.NoError(t, err)
	bob, err := users.CreateUser(ctx, "Bob", "bob-city@example.com", "secret123", "new   york", "+1 212 5550102", 20)
	require.NoError(t, err)
	carol, err := users.CreateUser(ctx, "Carol", "carol-city@example.com", "secret123", "Boston", "+1 617 5550103", 20)
	require.NoError(t, err)

	aliceReq, err := requests.Create(ctx, alice.ID, "New York", "5th Ave garage", "+1 212 5550101", 5)
	require.NoError(t, err)
	bobReq, err := requests.Create(ctx, bob.ID, "NEW YORK", "Brooklyn charger", "+1 212 5550102", 5)
	require.NoError(t, err)
	_, err = requests.Create(ctx, carol.ID, "Boston", "Back Bay lot", "+1 617 5550103", 5)
	require.NoError(t, err)

	t.Run("case and whitespace variants match the same city", func(t *testing.T) {
		listed, err := requests.OpenRequestsInCity(ctx, "  new   YORK ", carol.ID)
		require.NoError(t, err)
		ids := make([]primitive.ObjectID, 0, len(listed))
		for _, r := range listed {
			ids = append(ids, r.ID)
		}
		assert.ElementsMatch(t, []primitive.ObjectID{aliceReq.ID, bobReq.ID}, ids)
	})

	t.Run("caller's own request is excluded", func(t *testing.T) {
		listed, err := requests.OpenRequestsInCity(ctx, "New York", alice.ID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, bobReq.ID, listed[0].ID)
	})

	t.Run("accepted requests drop out of the listing", func(t *testing.T) {
		accepted, err := requests.TryAccept(ctx, bobReq.ID, carol.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAccepted, accepted.Status)

		listed, err := requests.OpenRequestsInCity(ctx, "New York", carol.ID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, aliceReq.ID, listed[0].ID)
	})

	t.Run("unknown request id reports not found", func(t *testing.T) {
		_, err := requests.GetByID(ctx, primitive.NewObjectID())
		assert.ErrorIs(t, err, ErrRequestNotFound)
	})
}
