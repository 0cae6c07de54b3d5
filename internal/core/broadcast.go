package core

import (
	"github.com/lunir/lunir/internal/domain"
	"github.com/rs/zerolog/log"
)

// Broadcaster fans events out to live subscribers. Per-member send failures
// are isolated: one dead connection never aborts delivery to siblings and
// never surfaces an error to the triggering sender.
type Broadcaster struct {
	registry *Registry
	index    *SubscriptionIndex

	// onDead runs the disconnect teardown for a connection whose send
	// failed. Wired by the Lifecycle controller.
	onDead func(*Connection)
}

func NewBroadcaster(registry *Registry, index *SubscriptionIndex) *Broadcaster {
	return &Broadcaster{registry: registry, index: index}
}

// SendToUser attempts a single synchronous send to userID's live connection.
// Returns false without error if the user has no live connection. A send
// failure marks the connection dead and triggers the same teardown path as
// an explicit disconnect.
func (b *Broadcaster) SendToUser(userID domain.UserID, ev Event) bool {
	c := b.registry.Lookup(userID)
	if c == nil {
		return false
	}
	return b.send(c, ev)
}

func (b *Broadcaster) send(c *Connection, ev Event) bool {
	if err := c.Send(ev); err != nil {
		log.Warn().Err(err).Str("module", "core.broadcast").
			Str("user_id", string(c.UserID())).Str("event", ev.Type).
			Msg("send failed, tearing connection down")
		if b.onDead != nil {
			b.onDead(c)
		}
		return false
	}
	return true
}

// BroadcastRoom delivers ev to every user subscribed to roomID at call time,
// except exclude. The member set is snapshotted first so teardown triggered
// by an individual send cannot mutate the set mid-iteration.
func (b *Broadcaster) BroadcastRoom(roomID domain.RoomID, ev Event, exclude domain.UserID) {
	members := b.index.MembersOf(roomID)
	sent := 0
	for _, userID := range members {
		if exclude != "" && userID == exclude {
			continue
		}
		if b.SendToUser(userID, ev) {
			sent++
		}
	}
	log.Debug().Str("module", "core.broadcast").Str("room_id", string(roomID)).
		Str("event", ev.Type).Int("members", len(members)).Int("sent", sent).
		Msg("room broadcast")
}

// BroadcastAll delivers ev to every live connection, subscribed to a room or
// not. Used for global announcements such as public room creation.
func (b *Broadcaster) BroadcastAll(ev Event) {
	for _, c := range b.registry.snapshot() {
		b.send(c, ev)
	}
}
