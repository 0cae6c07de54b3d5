package core

import (
	"sync"

	"github.com/lunir/lunir/internal/domain"
)

// SubscriptionIndex maps a room id to the set of currently-connected users
// subscribed to it. A user id appears in a room's set only while that user
// holds a live Connection. Empty sets are pruned. Each entry remembers the
// owning Connection so teardown of a superseded session can never strip the
// subscriptions of its successor.
type SubscriptionIndex struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.UserID]*Connection
}

func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{rooms: make(map[domain.RoomID]map[domain.UserID]*Connection)}
}

func (s *SubscriptionIndex) Subscribe(roomID domain.RoomID, c *Connection) {
	s.mu.Lock()
	set, ok := s.rooms[roomID]
	if !ok {
		set = make(map[domain.UserID]*Connection)
		s.rooms[roomID] = set
	}
	set[c.UserID()] = c
	s.mu.Unlock()
	c.addRoom(roomID)
}

// Unsubscribe removes c's subscription to roomID. Reports whether the
// subscription existed and belonged to c.
func (s *SubscriptionIndex) Unsubscribe(roomID domain.RoomID, c *Connection) bool {
	c.removeRoom(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(roomID, c)
}

func (s *SubscriptionIndex) removeLocked(roomID domain.RoomID, c *Connection) bool {
	set, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	cur, ok := set[c.UserID()]
	if !ok || cur != c {
		return false
	}
	delete(set, c.UserID())
	if len(set) == 0 {
		delete(s.rooms, roomID)
	}
	return true
}

// UnsubscribeAll removes c from every room it subscribed via this session
// and returns the affected room ids so the caller can emit one leave
// notification per room. Used on disconnect.
func (s *SubscriptionIndex) UnsubscribeAll(c *Connection) []domain.RoomID {
	rooms := c.drainRooms()
	if len(rooms) == 0 {
		return nil
	}
	affected := make([]domain.RoomID, 0, len(rooms))
	s.mu.Lock()
	for _, roomID := range rooms {
		if s.removeLocked(roomID, c) {
			affected = append(affected, roomID)
		}
	}
	s.mu.Unlock()
	return affected
}

// MembersOf returns a snapshot of the user ids subscribed to roomID.
// Unknown rooms yield an empty slice, never an error.
func (s *SubscriptionIndex) MembersOf(roomID domain.RoomID) []domain.UserID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.rooms[roomID]
	out := make([]domain.UserID, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out
}

// RoomCount is the number of rooms with at least one live subscriber.
func (s *SubscriptionIndex) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
