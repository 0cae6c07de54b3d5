package core

import (
	"sync"
	"sync/atomic"

	"github.com/lunir/lunir/internal/domain"
)

// Frame is a raw outbound payload, already encoded for the wire.
type Frame []byte

// Close codes surfaced to the transport layer on rejection or supersession.
const (
	CloseNormal     = 1000
	CloseSuperseded = 4000
	CloseAuthFailed = 4001
	CloseNotMember  = 4003
)

// Sender abstracts the transport endpoint of one live session.
// Owned by the adapter; implementations must make Close idempotent.
type Sender interface {
	TrySend(Frame) error
	Close(code int, reason string)
}

// Connection is one live transport-level session for exactly one user.
// Created on successful authentication+accept, destroyed on disconnect or
// superseding reconnect. The registry owns at most one per user id.
type Connection struct {
	user   domain.User
	sender Sender

	mu    sync.Mutex
	rooms map[domain.RoomID]struct{}

	torn atomic.Bool
}

func NewConnection(user domain.User, sender Sender) *Connection {
	return &Connection{
		user:   user,
		sender: sender,
		rooms:  make(map[domain.RoomID]struct{}),
	}
}

func (c *Connection) UserID() domain.UserID { return c.user.ID }
func (c *Connection) User() domain.User     { return c.user }

// Send attempts a single synchronous delivery. No retries.
func (c *Connection) Send(ev Event) error {
	frame, err := ev.Encode()
	if err != nil {
		return err
	}
	return c.sender.TrySend(frame)
}

func (c *Connection) CloseWith(code int, reason string) {
	c.sender.Close(code, reason)
}

// beginTeardown reports whether the caller won the right to run teardown.
// Concurrent triggers (client close racing a send failure or a superseding
// register) collapse into one effective teardown.
func (c *Connection) beginTeardown() bool {
	return c.torn.CompareAndSwap(false, true)
}

// tornDown reports whether teardown has started for this connection.
func (c *Connection) tornDown() bool {
	return c.torn.Load()
}

func (c *Connection) addRoom(roomID domain.RoomID) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) removeRoom(roomID domain.RoomID) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// drainRooms empties and returns the set of rooms this session subscribed.
func (c *Connection) drainRooms() []domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.RoomID, 0, len(c.rooms))
	for roomID := range c.rooms {
		out = append(out, roomID)
	}
	c.rooms = make(map[domain.RoomID]struct{})
	return out
}
