package core

import (
	"encoding/json"
	"time"

	"github.com/lunir/lunir/internal/domain"
)

// Outbound event types.
const (
	EventUserJoined  = "user_joined"
	EventUserLeft    = "user_left"
	EventMessage     = "message_received"
	EventError       = "error"
	EventRoomJoined  = "room_joined"
	EventRoomLeft    = "room_left"
	EventRoomCreated = "room_created"
	EventPong        = "pong"
)

// Event is the envelope delivered to live subscribers. Ephemeral: never
// queued or retried after a delivery attempt.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()}
}

func (e Event) Encode() (Frame, error) {
	b, err := json.Marshal(e)
	return Frame(b), err
}

// PresencePayload describes a join/leave, carrying a snapshot of the
// affected user's public identity fields.
type PresencePayload struct {
	User   domain.User   `json:"user"`
	RoomID domain.RoomID `json:"room_id"`
}

func UserJoined(user domain.User, roomID domain.RoomID) Event {
	return NewEvent(EventUserJoined, PresencePayload{User: user, RoomID: roomID})
}

func UserLeft(user domain.User, roomID domain.RoomID) Event {
	return NewEvent(EventUserLeft, PresencePayload{User: user, RoomID: roomID})
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func ErrorEvent(message string) Event {
	return NewEvent(EventError, ErrorPayload{Message: message})
}

type RoomPayload struct {
	RoomID domain.RoomID `json:"room_id"`
}

func RoomJoined(roomID domain.RoomID) Event {
	return NewEvent(EventRoomJoined, RoomPayload{RoomID: roomID})
}

func RoomLeft(roomID domain.RoomID) Event {
	return NewEvent(EventRoomLeft, RoomPayload{RoomID: roomID})
}

func MessageReceived(msg domain.Message) Event {
	return NewEvent(EventMessage, msg)
}
