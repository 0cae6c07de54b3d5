package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lunir/lunir/internal/domain"
)

func TestSubscribeAndMembersOf(t *testing.T) {
	idx := NewSubscriptionIndex()
	a := NewConnection(testUser("alice"), &fakeSender{})
	b := NewConnection(testUser("bob"), &fakeSender{})

	idx.Subscribe("room-1", a)
	idx.Subscribe("room-1", b)
	idx.Subscribe("room-2", a)

	assert.ElementsMatch(t, []domain.UserID{"alice", "bob"}, idx.MembersOf("room-1"))
	assert.ElementsMatch(t, []domain.UserID{"alice"}, idx.MembersOf("room-2"))
	assert.Equal(t, 2, idx.RoomCount())

	// Unknown rooms yield an empty set, never an error.
	assert.Empty(t, idx.MembersOf("no-such-room"))
}

func TestUnsubscribePrunesEmptyRooms(t *testing.T) {
	idx := NewSubscriptionIndex()
	a := NewConnection(testUser("alice"), &fakeSender{})
	idx.Subscribe("room-1", a)
	assert.Equal(t, 1, idx.RoomCount())

	assert.True(t, idx.Unsubscribe("room-1", a))
	assert.Equal(t, 0, idx.RoomCount())
	assert.Empty(t, idx.MembersOf("room-1"))

	// Already unsubscribed.
	assert.False(t, idx.Unsubscribe("room-1", a))
}

func TestUnsubscribeAllReturnsAffectedRooms(t *testing.T) {
	idx := NewSubscriptionIndex()
	a := NewConnection(testUser("alice"), &fakeSender{})
	b := NewConnection(testUser("bob"), &fakeSender{})

	idx.Subscribe("room-1", a)
	idx.Subscribe("room-2", a)
	idx.Subscribe("room-2", b)

	affected := idx.UnsubscribeAll(a)
	assert.ElementsMatch(t, []domain.RoomID{"room-1", "room-2"}, affected)

	// room-1 emptied and pruned, room-2 still holds bob.
	assert.Equal(t, 1, idx.RoomCount())
	assert.ElementsMatch(t, []domain.UserID{"bob"}, idx.MembersOf("room-2"))

	// Second call affects nothing.
	assert.Empty(t, idx.UnsubscribeAll(a))
}

func TestUnsubscribeIgnoresForeignConnection(t *testing.T) {
	idx := NewSubscriptionIndex()
	old := NewConnection(testUser("alice"), &fakeSender{})
	replacement := NewConnection(testUser("alice"), &fakeSender{})

	idx.Subscribe("room-1", old)
	idx.Subscribe("room-1", replacement) // supersedes the entry

	// Teardown of the old session must not strip the successor's entry.
	assert.Empty(t, idx.UnsubscribeAll(old))
	assert.ElementsMatch(t, []domain.UserID{"alice"}, idx.MembersOf("room-1"))
}
