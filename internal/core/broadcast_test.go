package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunir/lunir/internal/domain"
)

func TestSendToUserNotConnected(t *testing.T) {
	lc, _, _ := newTestLifecycle()
	// No live connection: false, no error, nothing blows up.
	assert.False(t, lc.Broadcaster().SendToUser("ghost", ErrorEvent("hi")))
}

func TestSendToUserDelivers(t *testing.T) {
	lc, _, _ := newTestLifecycle()
	s := &fakeSender{}
	lc.Connect(NewConnection(testUser("alice"), s), "room-1")

	assert.True(t, lc.Broadcaster().SendToUser("alice", ErrorEvent("oops")))
	events := s.eventsOfType(t, EventError)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestSendFailureTriggersTeardown(t *testing.T) {
	lc, registry, index := newTestLifecycle()
	sAlice := &fakeSender{}
	sBob := &fakeSender{}
	lc.Connect(NewConnection(testUser("alice"), sAlice), "room-1")
	lc.Connect(NewConnection(testUser("bob"), sBob), "room-1")

	sBob.fail()
	assert.False(t, lc.Broadcaster().SendToUser("bob", ErrorEvent("x")))

	// Dead connection got the full disconnect treatment.
	assert.Nil(t, registry.Lookup("bob"))
	assert.ElementsMatch(t, []domain.UserID{"alice"}, index.MembersOf("room-1"))
	left := sAlice.eventsOfType(t, EventUserLeft)
	require.Len(t, left, 1)
}

func TestBroadcastRoomPartialFailure(t *testing.T) {
	lc, registry, _ := newTestLifecycle()
	senders := map[string]*fakeSender{}
	for _, name := range []string{"alice", "bob", "carol"} {
		s := &fakeSender{}
		senders[name] = s
		lc.Connect(NewConnection(testUser(name), s), "room-1")
	}

	// Bob's transport dies; the other members must still be served.
	senders["bob"].fail()
	lc.Broadcaster().BroadcastRoom("room-1", NewEvent(EventMessage, "payload"), "")

	assert.Len(t, senders["alice"].eventsOfType(t, EventMessage), 1)
	assert.Len(t, senders["carol"].eventsOfType(t, EventMessage), 1)
	assert.Empty(t, senders["bob"].eventsOfType(t, EventMessage))
	assert.Nil(t, registry.Lookup("bob"))
}

func TestBroadcastRoomExcludesUser(t *testing.T) {
	lc, _, _ := newTestLifecycle()
	sAlice := &fakeSender{}
	sBob := &fakeSender{}
	lc.Connect(NewConnection(testUser("alice"), sAlice), "room-1")
	lc.Connect(NewConnection(testUser("bob"), sBob), "room-1")

	lc.Broadcaster().BroadcastRoom("room-1", NewEvent(EventMessage, "hello"), "alice")

	assert.Empty(t, sAlice.eventsOfType(t, EventMessage))
	assert.Len(t, sBob.eventsOfType(t, EventMessage), 1)
}

func TestBroadcastAllReachesEveryConnection(t *testing.T) {
	lc, _, _ := newTestLifecycle()
	sAlice := &fakeSender{}
	sBob := &fakeSender{}
	lc.Connect(NewConnection(testUser("alice"), sAlice), "room-1")
	lc.Connect(NewConnection(testUser("bob"), sBob), "room-2")

	lc.Broadcaster().BroadcastAll(NewEvent(EventRoomCreated, "r"))

	assert.Len(t, sAlice.eventsOfType(t, EventRoomCreated), 1)
	assert.Len(t, sBob.eventsOfType(t, EventRoomCreated), 1)
}
