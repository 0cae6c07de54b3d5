// Package memory is an in-memory store implementation backing tests and
// secret-free development runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunir/lunir/internal/domain"
	"github.com/lunir/lunir/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]domain.Room
	members  map[domain.RoomID]map[domain.UserID]domain.RoomMember
	messages map[domain.RoomID][]domain.Message
}

func New() *Store {
	return &Store{
		rooms:    make(map[domain.RoomID]domain.Room),
		members:  make(map[domain.RoomID]map[domain.UserID]domain.RoomMember),
		messages: make(map[domain.RoomID][]domain.Message),
	}
}

// Stores returns the store bundle, this instance serving every interface.
func (s *Store) Stores() store.Stores {
	return store.Stores{Rooms: s, Membership: s, Messages: s}
}

func (s *Store) Create(_ context.Context, name, description string, private bool, creator domain.User) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := domain.Room{
		ID:          domain.RoomID(uuid.NewString()),
		Name:        name,
		Description: description,
		Private:     private,
		CreatedBy:   creator.ID,
		CreatedAt:   time.Now().UTC(),
	}
	s.rooms[room.ID] = room
	s.members[room.ID] = map[domain.UserID]domain.RoomMember{
		creator.ID: {User: creator, Role: domain.RoleAdmin, JoinedAt: room.CreatedAt},
	}
	return room, nil
}

func (s *Store) Get(_ context.Context, roomID domain.RoomID) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, store.ErrNotFound
	}
	return room, nil
}

func (s *Store) ListForUser(_ context.Context, userID domain.UserID) ([]store.RoomSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.RoomSummary, 0)
	for roomID, members := range s.members {
		if _, ok := members[userID]; !ok {
			continue
		}
		out = append(out, store.RoomSummary{Room: s.rooms[roomID], MemberCount: len(members)})
	}
	return out, nil
}

func (s *Store) IsMember(_ context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[roomID][userID]
	return ok, nil
}

func (s *Store) Members(_ context.Context, roomID domain.RoomID) ([]domain.RoomMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RoomMember, 0, len(s.members[roomID]))
	for _, m := range s.members[roomID] {
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) Join(_ context.Context, user domain.User, roomID domain.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return false, store.ErrNotFound
	}
	members := s.members[roomID]
	if members == nil {
		members = make(map[domain.UserID]domain.RoomMember)
		s.members[roomID] = members
	}
	if _, ok := members[user.ID]; ok {
		return false, nil
	}
	members[user.ID] = domain.RoomMember{User: user, Role: domain.RoleMember, JoinedAt: time.Now().UTC()}
	return true, nil
}

func (s *Store) Leave(_ context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.members[roomID]
	if _, ok := members[userID]; !ok {
		return false, nil
	}
	delete(members, userID)
	return true, nil
}

func (s *Store) Append(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = domain.MessageID(uuid.NewString())
	msg.CreatedAt = time.Now().UTC()
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	return msg, nil
}

func (s *Store) ListRoom(_ context.Context, roomID domain.RoomID, limit int, beforeID domain.MessageID) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[roomID]
	end := len(msgs)
	if beforeID != "" {
		for i, m := range msgs {
			if m.ID == beforeID {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.Message, end-start)
	copy(out, msgs[start:end])
	return out, nil
}
