package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunir/lunir/internal/domain"
)

func presenceOf(t *testing.T, ev Event) PresencePayload {
	t.Helper()
	raw, err := json.Marshal(ev.Payload)
	require.NoError(t, err)
	var p PresencePayload
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func TestConnectDisconnectScenario(t *testing.T) {
	lc, registry, index := newTestLifecycle()

	// A connects to an empty room: no join event delivered anywhere.
	sAlice := &fakeSender{}
	lc.Connect(NewConnection(testUser("alice"), sAlice), "room-1")
	assert.ElementsMatch(t, []domain.UserID{"alice"}, index.MembersOf("room-1"))
	assert.Empty(t, sAlice.events(t))

	// B connects: A receives exactly one user_joined for B; B receives none.
	sBob := &fakeSender{}
	bob := NewConnection(testUser("bob"), sBob)
	lc.Connect(bob, "room-1")
	assert.ElementsMatch(t, []domain.UserID{"alice", "bob"}, index.MembersOf("room-1"))

	joins := sAlice.eventsOfType(t, EventUserJoined)
	require.Len(t, joins, 1)
	assert.Equal(t, domain.UserID("bob"), presenceOf(t, joins[0]).User.ID)
	assert.Empty(t, sBob.eventsOfType(t, EventUserJoined), "joining user is excluded from its own join event")

	// B disconnects: A receives one user_left, B is gone from both maps.
	lc.Disconnect(bob)
	assert.ElementsMatch(t, []domain.UserID{"alice"}, index.MembersOf("room-1"))
	assert.Nil(t, registry.Lookup("bob"))

	lefts := sAlice.eventsOfType(t, EventUserLeft)
	require.Len(t, lefts, 1)
	assert.Equal(t, domain.UserID("bob"), presenceOf(t, lefts[0]).User.ID)
}

func TestDisconnectIdempotent(t *testing.T) {
	lc, registry, _ := newTestLifecycle()
	sAlice := &fakeSender{}
	sBob := &fakeSender{}
	lc.Connect(NewConnection(testUser("alice"), sAlice), "room-1")
	bob := NewConnection(testUser("bob"), sBob)
	lc.Connect(bob, "room-1")

	lc.Disconnect(bob)
	lc.Disconnect(bob)

	// Exactly one teardown: one user_left, no duplicates.
	assert.Len(t, sAlice.eventsOfType(t, EventUserLeft), 1)
	assert.Nil(t, registry.Lookup("bob"))
}

func TestSupersedeClosesPriorConnection(t *testing.T) {
	lc, registry, index := newTestLifecycle()

	sFirst := &fakeSender{}
	first := NewConnection(testUser("alice"), sFirst)
	lc.Connect(first, "room-1")

	sSecond := &fakeSender{}
	second := NewConnection(testUser("alice"), sSecond)
	lc.Connect(second, "room-1")

	closed, code, reason := sFirst.isClosed()
	assert.True(t, closed)
	assert.Equal(t, CloseSuperseded, code)
	assert.Equal(t, "superseded", reason)

	// Exactly one registry entry, pointing at the second transport.
	assert.Equal(t, 1, registry.Count())
	assert.Same(t, second, registry.Lookup("alice"))
	assert.ElementsMatch(t, []domain.UserID{"alice"}, index.MembersOf("room-1"))

	// Late teardown of the first connection must not disturb the second.
	lc.Disconnect(first)
	assert.Same(t, second, registry.Lookup("alice"))
	assert.ElementsMatch(t, []domain.UserID{"alice"}, index.MembersOf("room-1"))
}

func TestSupersedeNotifiesRoomMates(t *testing.T) {
	lc, _, _ := newTestLifecycle()
	sBob := &fakeSender{}
	lc.Connect(NewConnection(testUser("bob"), sBob), "room-1")

	lc.Connect(NewConnection(testUser("alice"), &fakeSender{}), "room-1")
	lc.Connect(NewConnection(testUser("alice"), &fakeSender{}), "room-1")

	// Bob saw alice leave (superseded session torn down) and rejoin.
	assert.Len(t, sBob.eventsOfType(t, EventUserJoined), 2)
	assert.Len(t, sBob.eventsOfType(t, EventUserLeft), 1)
}

func TestRoomSwitch(t *testing.T) {
	lc, registry, index := newTestLifecycle()
	sAlice := &fakeSender{}
	alice := NewConnection(testUser("alice"), sAlice)
	lc.Connect(alice, "room-a")

	sBob := &fakeSender{}
	lc.Connect(NewConnection(testUser("bob"), sBob), "room-a")
	sCarol := &fakeSender{}
	lc.Connect(NewConnection(testUser("carol"), sCarol), "room-b")

	// Leave A, join B: registry entry untouched throughout.
	lc.LeaveRoom(alice, "room-a")
	lc.JoinRoom(alice, "room-b")

	assert.Same(t, alice, registry.Lookup("alice"))
	assert.ElementsMatch(t, []domain.UserID{"bob"}, index.MembersOf("room-a"))
	assert.ElementsMatch(t, []domain.UserID{"alice", "carol"}, index.MembersOf("room-b"))

	require.Len(t, sBob.eventsOfType(t, EventUserLeft), 1)
	require.Len(t, sCarol.eventsOfType(t, EventUserJoined), 1)
	// The switching user is excluded from both of its own presence events;
	// the only join alice ever saw was bob entering room-a earlier.
	assert.Empty(t, sAlice.eventsOfType(t, EventUserLeft))
	joins := sAlice.eventsOfType(t, EventUserJoined)
	require.Len(t, joins, 1)
	assert.Equal(t, domain.UserID("bob"), presenceOf(t, joins[0]).User.ID)
}

func TestJoinAfterTeardownLeavesNoTrace(t *testing.T) {
	lc, registry, index := newTestLifecycle()
	sAlice := &fakeSender{}
	alice := NewConnection(testUser("alice"), sAlice)
	lc.Connect(alice, "room-a")

	// A join frame loses the race against teardown: the late subscription
	// must be rolled back, not linger as a dead index entry.
	lc.Disconnect(alice)
	lc.JoinRoom(alice, "room-b")

	assert.Nil(t, registry.Lookup("alice"))
	assert.Empty(t, index.MembersOf("room-b"))
	assert.Equal(t, 0, index.RoomCount())
}

func TestConnectAfterTeardownLeavesNoTrace(t *testing.T) {
	lc, registry, index := newTestLifecycle()
	sBob := &fakeSender{}
	lc.Connect(NewConnection(testUser("bob"), sBob), "room-a")

	sAlice := &fakeSender{}
	alice := NewConnection(testUser("alice"), sAlice)
	lc.Disconnect(alice)
	lc.Connect(alice, "room-a")

	assert.Nil(t, registry.Lookup("alice"))
	assert.ElementsMatch(t, []domain.UserID{"bob"}, index.MembersOf("room-a"))
	assert.Empty(t, sBob.eventsOfType(t, EventUserJoined), "torn-down session must not announce a join")
}

func TestLeaveRoomNotSubscribedIsNoop(t *testing.T) {
	lc, _, _ := newTestLifecycle()
	sAlice := &fakeSender{}
	alice := NewConnection(testUser("alice"), sAlice)
	lc.Connect(alice, "room-a")

	sBob := &fakeSender{}
	lc.Connect(NewConnection(testUser("bob"), sBob), "room-b")

	lc.LeaveRoom(alice, "room-b")
	assert.Empty(t, sBob.eventsOfType(t, EventUserLeft))
}
