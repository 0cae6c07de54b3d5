package core

import (
	"github.com/lunir/lunir/internal/domain"
	"github.com/rs/zerolog/log"
)

// Lifecycle orchestrates connect/disconnect/reconnect transitions across the
// Registry and the SubscriptionIndex, emitting presence events. It is the
// sole writer of both structures; handler code never mutates them directly.
type Lifecycle struct {
	registry *Registry
	index    *SubscriptionIndex
	bc       *Broadcaster
}

func NewLifecycle(registry *Registry, index *SubscriptionIndex, bc *Broadcaster) *Lifecycle {
	l := &Lifecycle{registry: registry, index: index, bc: bc}
	bc.onDead = l.teardownDead
	return l
}

func (l *Lifecycle) Registry() *Registry       { return l.registry }
func (l *Lifecycle) Index() *SubscriptionIndex { return l.index }
func (l *Lifecycle) Broadcaster() *Broadcaster { return l.bc }

// Connect admits an authenticated, accepted session into roomID. Any prior
// live connection for the same user id is superseded: fully torn down, with
// its transport closed carrying a superseded close code, before the new
// session's first event fires.
func (l *Lifecycle) Connect(c *Connection, roomID domain.RoomID) {
	prior := l.registry.Register(c)
	if prior != nil {
		l.teardown(prior, CloseSuperseded, "superseded")
	}
	l.index.Subscribe(roomID, c)
	if c.tornDown() {
		// Teardown raced the admission. Its UnsubscribeAll has already
		// drained the room set, so roll the late subscription back rather
		// than leave a dead index entry behind.
		l.index.Unsubscribe(roomID, c)
		l.registry.unregisterConn(c)
		return
	}
	log.Info().Str("module", "core.lifecycle").Str("user_id", string(c.UserID())).
		Str("room_id", string(roomID)).Msg("session connected")
	l.bc.BroadcastRoom(roomID, UserJoined(c.User(), roomID), c.UserID())
}

// Disconnect runs the full teardown for an explicitly closed or errored
// session. Safe to call multiple times and safe to race with a superseding
// Connect: teardown runs exactly once per connection.
func (l *Lifecycle) Disconnect(c *Connection) {
	l.teardown(c, CloseNormal, "")
}

func (l *Lifecycle) teardownDead(c *Connection) {
	l.teardown(c, CloseNormal, "send failed")
}

func (l *Lifecycle) teardown(c *Connection, code int, reason string) {
	if !c.beginTeardown() {
		return
	}
	c.CloseWith(code, reason)
	affected := l.index.UnsubscribeAll(c)
	l.registry.unregisterConn(c)
	log.Info().Str("module", "core.lifecycle").Str("user_id", string(c.UserID())).
		Int("rooms", len(affected)).Str("reason", reason).Msg("session disconnected")
	// The user is already out of the index, so it is not self-excluded: it
	// naturally won't receive its own leave event.
	for _, roomID := range affected {
		l.bc.BroadcastRoom(roomID, UserLeft(c.User(), roomID), "")
	}
}

// JoinRoom subscribes an already-connected session to an additional room and
// announces the join to the room's other live subscribers.
func (l *Lifecycle) JoinRoom(c *Connection, roomID domain.RoomID) {
	l.index.Subscribe(roomID, c)
	if c.tornDown() {
		l.index.Unsubscribe(roomID, c)
		return
	}
	l.bc.BroadcastRoom(roomID, UserJoined(c.User(), roomID), c.UserID())
}

// LeaveRoom drops one room subscription while keeping the connection alive.
// The registry entry is untouched.
func (l *Lifecycle) LeaveRoom(c *Connection, roomID domain.RoomID) {
	if !l.index.Unsubscribe(roomID, c) {
		return
	}
	l.bc.BroadcastRoom(roomID, UserLeft(c.User(), roomID), c.UserID())
}
