package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lunir/lunir/internal/domain"
)

// fakeSender records frames and close calls so tests can assert on exactly
// what a client would have received.
type fakeSender struct {
	mu     sync.Mutex
	frames []Frame

	failing     bool
	closed      bool
	closeCode   int
	closeReason string
}

func (f *fakeSender) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing || f.closed {
		return errors.New("send failed")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSender) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
}

func (f *fakeSender) fail() {
	f.mu.Lock()
	f.failing = true
	f.mu.Unlock()
}

func (f *fakeSender) isClosed() (bool, int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode, f.closeReason
}

// events decodes every recorded frame back into its envelope.
func (f *fakeSender) events(t *testing.T) []Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, 0, len(f.frames))
	for _, fr := range f.frames {
		var ev Event
		require.NoError(t, json.Unmarshal(fr, &ev))
		out = append(out, ev)
	}
	return out
}

// eventsOfType filters decoded events by type.
func (f *fakeSender) eventsOfType(t *testing.T, eventType string) []Event {
	t.Helper()
	var out []Event
	for _, ev := range f.events(t) {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func testUser(id string) domain.User {
	return domain.User{ID: domain.UserID(id), Username: id}
}

func newTestLifecycle() (*Lifecycle, *Registry, *SubscriptionIndex) {
	registry := NewRegistry()
	index := NewSubscriptionIndex()
	bc := NewBroadcaster(registry, index)
	return NewLifecycle(registry, index, bc), registry, index
}
