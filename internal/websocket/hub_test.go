package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, userID, name string) *Client {
	return &Client{
		Hub:    hub,
		Send:   make(chan []byte, sendBufferSize),
		UserID: userID,
		Name:   name,
		rooms:  make(map[string]bool),
	}
}

func received(c *Client) [][]byte {
	var payloads [][]byte
	for {
		select {
		case p := <-c.Send:
			payloads = append(payloads, p)
		default:
			return payloads
		}
	}
}

func TestRoomBroadcastReachesMembersOnly(t *testing.T) {
	hub := NewHub()

	alice := newTestClient(hub, "alice", "Alice")
	bob := newTestClient(hub, "bob", "Bob")
	carol := newTestClient(hub, "carol", "Carol")
	for _, c := range []*Client{alice, bob, carol} {
		hub.registerClient(c)
	}

	hub.JoinRoom(alice, "city-berlin")
	hub.JoinRoom(bob, "city-berlin")
	hub.JoinRoom(carol, "city-hamburg")

	hub.broadcastToRoom(&RoomMessage{Room: "city-berlin", Payload: []byte("hi")})

	assert.Len(t, received(alice), 1)
	assert.Len(t, received(bob), 1)
	assert.Empty(t, received(carol))
}

func TestRoomBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()

	alice := newTestClient(hub, "alice", "Alice")
	bob := newTestClient(hub, "bob", "Bob")
	hub.registerClient(alice)
	hub.registerClient(bob)
	hub.JoinRoom(alice, "city-berlin")
	hub.JoinRoom(bob, "city-berlin")

	hub.broadcastToRoom(&RoomMessage{Room: "city-berlin", Payload: []byte("taken"), Exclude: alice})

	assert.Empty(t, received(alice))
	assert.Len(t, received(bob), 1)
}

func TestUserBroadcastReachesAllConnectionsOfUser(t *testing.T) {
	hub := NewHub()

	phone := newTestClient(hub, "alice", "Alice")
	laptop := newTestClient(hub, "alice", "Alice")
	bob := newTestClient(hub, "bob", "Bob")
	for _, c := range []*Client{phone, laptop, bob} {
		hub.registerClient(c)
	}

	hub.broadcastToUser(&UserMessage{UserID: "alice", Payload: []byte("accepted")})

	assert.Len(t, received(phone), 1)
	assert.Len(t, received(laptop), 1)
	assert.Empty(t, received(bob))
}

func TestClientCanHoldCityAndRequestRooms(t *testing.T) {
	hub := NewHub()

	alice := newTestClient(hub, "alice", "Alice")
	hub.registerClient(alice)

	hub.JoinRoom(alice, "city-berlin")
	hub.JoinRoom(alice, "request-abc")
	hub.JoinRoom(alice, "request-def")

	assert.Equal(t, 1, hub.RoomSize("city-berlin"))
	assert.Equal(t, 1, hub.RoomSize("request-abc"))
	assert.Equal(t, 1, hub.RoomSize("request-def"))

	hub.LeaveRoom(alice, "request-abc")
	assert.Equal(t, 0, hub.RoomSize("request-abc"))
	assert.Equal(t, 1, hub.RoomSize("city-berlin"))
}

func TestLeaveRoomNotJoinedIsNoOp(t *testing.T) {
	hub := NewHub()

	alice := newTestClient(hub, "alice", "Alice")
	hub.registerClient(alice)

	hub.LeaveRoom(alice, "city-nowhere")
	assert.Equal(t, 0, hub.RoomSize("city-nowhere"))
}

func TestUnregisterCleansRoomsAndPersonalChannel(t *testing.T) {
	hub := NewHub()

	phone := newTestClient(hub, "alice", "Alice")
	laptop := newTestClient(hub, "alice", "Alice")
	hub.registerClient(phone)
	hub.registerClient(laptop)
	hub.JoinRoom(phone, "city-berlin")
	hub.JoinRoom(phone, "request-abc")

	hub.unregisterClient(phone)

	assert.Equal(t, 0, hub.RoomSize("city-berlin"))
	assert.Equal(t, 0, hub.RoomSize("request-abc"))

	// The surviving connection still receives personal-channel traffic.
	hub.broadcastToUser(&UserMessage{UserID: "alice", Payload: []byte("still here")})
	assert.Len(t, received(laptop), 1)

	// The closed connection's channel no longer accepts sends.
	_, open := <-phone.Send
	assert.False(t, open)

	// Unregistering twice must not panic or double-close.
	hub.unregisterClient(phone)
}

func TestSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()

	slow := newTestClient(hub, "slow", "Slow")
	hub.registerClient(slow)
	hub.JoinRoom(slow, "city-berlin")

	for i := 0; i < sendBufferSize+10; i++ {
		hub.broadcastToRoom(&RoomMessage{Room: "city-berlin", Payload: []byte("x")})
	}

	require.Len(t, received(slow), sendBufferSize)
}
