package websocket

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAcceptRequiresCityRoom(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, primitive.NewObjectID().Hex(), "Alice")

	raw := json.RawMessage(`{"requestId":"` + primitive.NewObjectID().Hex() + `"}`)
	client.handleAcceptRequest(context.Background(), raw)

	payloads := received(client)
	require.Len(t, payloads, 1)

	var event Event
	require.NoError(t, json.Unmarshal(payloads[0], &event))
	assert.Equal(t, EventError, event.Type)

	var data map[string]string
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, "You must join a city room first", data["message"])
}

func TestChargingRequestAnnounceRequiresCityRoom(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, primitive.NewObjectID().Hex(), "Bob")

	raw := json.RawMessage(`{"requestId":"` + primitive.NewObjectID().Hex() + `"}`)
	client.handleChargingRequest(context.Background(), raw)

	payloads := received(client)
	require.Len(t, payloads, 1)

	var event Event
	require.NoError(t, json.Unmarshal(payloads[0], &event))
	assert.Equal(t, EventError, event.Type)
}
