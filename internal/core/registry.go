package core

import (
	"sync"

	"github.com/lunir/lunir/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps each user id to at most one live Connection.
// Mutated only by the Lifecycle controller.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]*Connection)}
}

// Register installs c and returns the prior connection for the same user id,
// if any. The swap is atomic under the lock so the at-most-one invariant
// holds at every instant; the caller is responsible for tearing the prior
// session down with a superseded reason.
func (r *Registry) Register(c *Connection) (prior *Connection) {
	r.mu.Lock()
	prior = r.conns[c.UserID()]
	r.conns[c.UserID()] = c
	r.mu.Unlock()
	if prior != nil {
		log.Info().Str("module", "core.registry").Str("user_id", string(c.UserID())).Msg("superseding existing connection")
	}
	return prior
}

// Unregister removes and returns the entry if present. Idempotent: a second
// call for the same user id is a no-op returning nil.
func (r *Registry) Unregister(userID domain.UserID) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[userID]
	if !ok {
		return nil
	}
	delete(r.conns, userID)
	return c
}

// unregisterConn removes the entry only if it still points at c, so tearing
// down a superseded session never evicts its successor.
func (r *Registry) unregisterConn(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[c.UserID()]; ok && cur == c {
		delete(r.conns, c.UserID())
		return true
	}
	return false
}

func (r *Registry) Lookup(userID domain.UserID) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[userID]
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// snapshot returns all live connections for an all-subscriber fan-out.
func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
