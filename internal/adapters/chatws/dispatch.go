package chatws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lunir/lunir/internal/core"
	"github.com/lunir/lunir/internal/domain"
)

// inboundKind is the closed set of recognized inbound event kinds.
type inboundKind int

const (
	kindUnknown inboundKind = iota
	kindSendMessage
	kindJoinRoom
	kindLeaveRoom
	kindPing
)

func parseKind(s string) inboundKind {
	switch s {
	case "send_message":
		return kindSendMessage
	case "join_room":
		return kindJoinRoom
	case "leave_room":
		return kindLeaveRoom
	case "ping":
		return kindPing
	default:
		return kindUnknown
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (ctl *Controller) handleFrame(ctx context.Context, sess *session, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Malformed frames are dropped without an error event: there is no
		// parsed type to answer to.
		log.Warn().Err(err).Str("module", "chatws").
			Str("user_id", string(sess.conn.UserID())).Msg("bad json frame")
		return
	}

	switch parseKind(env.Type) {
	case kindSendMessage:
		ctl.handleSendMessage(ctx, sess, env.Payload)
	case kindJoinRoom:
		ctl.handleJoinRoom(ctx, sess, env.Payload)
	case kindLeaveRoom:
		ctl.handleLeaveRoom(ctx, sess, env.Payload)
	case kindPing:
		ctl.reply(sess, core.NewEvent(core.EventPong, nil))
	case kindUnknown:
		ctl.reply(sess, core.ErrorEvent(fmt.Sprintf("Unknown message type: %s", env.Type)))
	}
}

// reply sends an event to this session only. Failures run the usual dead
// connection teardown inside the broadcast engine.
func (ctl *Controller) reply(sess *session, ev core.Event) {
	ctl.lifecycle.Broadcaster().SendToUser(sess.conn.UserID(), ev)
}

func (ctl *Controller) handleSendMessage(ctx context.Context, sess *session, payload json.RawMessage) {
	var p struct {
		Content     string `json:"content"`
		MessageType string `json:"message_type"`
		ParentID    string `json:"parent_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		ctl.reply(sess, core.ErrorEvent("Invalid payload"))
		return
	}

	// Membership is re-checked on every send: the sender may have left (or
	// been removed from) the room since connecting.
	member, err := ctl.stores.Membership.IsMember(ctx, sess.conn.UserID(), sess.room)
	if err != nil {
		log.Error().Err(err).Str("module", "chatws").Msg("membership recheck failed")
		ctl.reply(sess, core.ErrorEvent("Failed to send message"))
		return
	}
	if !member {
		ctl.reply(sess, core.ErrorEvent("You are no longer a member of this room"))
		return
	}

	content, err := domain.ValidateContent(p.Content)
	switch err {
	case nil:
	case domain.ErrMessageEmpty:
		ctl.reply(sess, core.ErrorEvent("Message content cannot be empty"))
		return
	case domain.ErrMessageTooLong:
		ctl.reply(sess, core.ErrorEvent(fmt.Sprintf("Message too long (max %d characters)", domain.MaxMessageLen)))
		return
	default:
		ctl.reply(sess, core.ErrorEvent("Invalid message"))
		return
	}

	if !ctl.limiter.Allow(sess.conn.UserID()) {
		ctl.reply(sess, core.ErrorEvent("Too many messages, slow down"))
		return
	}

	hasLatex, hasCode := domain.DetectMarkup(content)
	msg := domain.Message{
		RoomID:   sess.room,
		User:     sess.conn.User(),
		Content:  content,
		Type:     domain.ParseMessageType(p.MessageType),
		ParentID: domain.MessageID(p.ParentID),
		HasLatex: hasLatex,
		HasCode:  hasCode,
	}
	stored, err := ctl.stores.Messages.Append(ctx, msg)
	if err != nil {
		log.Error().Err(err).Str("module", "chatws").
			Str("user_id", string(sess.conn.UserID())).Msg("message append failed")
		ctl.reply(sess, core.ErrorEvent("Failed to save message"))
		return
	}

	// The sender is not excluded: it receives its own message back with the
	// stored id and timestamp.
	ctl.lifecycle.Broadcaster().BroadcastRoom(sess.room, core.MessageReceived(stored), "")
}

func (ctl *Controller) handleJoinRoom(ctx context.Context, sess *session, payload json.RawMessage) {
	roomID, ok := ctl.roomIDFrom(sess, payload)
	if !ok {
		return
	}

	joined, err := ctl.stores.Membership.Join(ctx, sess.conn.User(), roomID)
	if err != nil || !joined {
		ctl.reply(sess, core.ErrorEvent("Failed to join room or already a member"))
		return
	}

	ctl.lifecycle.JoinRoom(sess.conn, roomID)
	ctl.reply(sess, core.RoomJoined(roomID))
}

func (ctl *Controller) handleLeaveRoom(ctx context.Context, sess *session, payload json.RawMessage) {
	roomID, ok := ctl.roomIDFrom(sess, payload)
	if !ok {
		return
	}

	left, err := ctl.stores.Membership.Leave(ctx, sess.conn.UserID(), roomID)
	if err != nil || !left {
		ctl.reply(sess, core.ErrorEvent("Failed to leave room or not a member"))
		return
	}

	ctl.lifecycle.LeaveRoom(sess.conn, roomID)
	ctl.reply(sess, core.RoomLeft(roomID))
}

func (ctl *Controller) roomIDFrom(sess *session, payload json.RawMessage) (domain.RoomID, bool) {
	var p struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		ctl.reply(sess, core.ErrorEvent("Room ID is required"))
		return "", false
	}
	return domain.RoomID(p.RoomID), true
}
