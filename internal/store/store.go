// Package store defines the persistence boundary the chat core consumes:
// room, membership and message storage. Identity itself is external (token
// verification), so stores keep denormalized snapshots of the public user
// fields captured at write time.
package store

import (
	"context"
	"errors"

	"github.com/lunir/lunir/internal/domain"
)

var ErrNotFound = errors.New("not found")

// RoomSummary is a room plus its persisted member count, for listings.
type RoomSummary struct {
	domain.Room
	MemberCount int `json:"member_count"`
}

// RoomStore owns chat room records.
type RoomStore interface {
	// Create stores a new room and adds the creator as its admin member.
	Create(ctx context.Context, name, description string, private bool, creator domain.User) (domain.Room, error)
	// Get returns ErrNotFound for unknown room ids.
	Get(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	// ListForUser returns the rooms the user is a member of.
	ListForUser(ctx context.Context, userID domain.UserID) ([]RoomSummary, error)
}

// MembershipStore is the source of truth for which users belong to which
// rooms. Live presence is the subscription index's concern, not this one's.
type MembershipStore interface {
	IsMember(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error)
	Members(ctx context.Context, roomID domain.RoomID) ([]domain.RoomMember, error)
	// Join reports false if the user is already a member.
	Join(ctx context.Context, user domain.User, roomID domain.RoomID) (bool, error)
	// Leave reports false if the user is not a member.
	Leave(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error)
}

// MessageStore persists user-authored messages.
type MessageStore interface {
	// Append stores the message, assigning its id and created_at.
	Append(ctx context.Context, msg domain.Message) (domain.Message, error)
	// ListRoom returns up to limit messages in chronological order. When
	// beforeID is set, only messages older than it are returned.
	ListRoom(ctx context.Context, roomID domain.RoomID, limit int, beforeID domain.MessageID) ([]domain.Message, error)
}

// Stores bundles the persistence interfaces for wiring.
type Stores struct {
	Rooms      RoomStore
	Membership MembershipStore
	Messages   MessageStore
}
