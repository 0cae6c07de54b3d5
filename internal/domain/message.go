package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxMessageLen = 2000

var (
	ErrMessageEmpty   = errors.New("message content empty")
	ErrMessageTooLong = errors.New("message too long")
)

type MessageID string

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageCode   MessageType = "code"
	MessageLatex  MessageType = "latex"
	MessageSystem MessageType = "system"
)

// ParseMessageType falls back to text for anything unrecognized,
// matching the lenient handling on the inbound path.
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case MessageText, MessageCode, MessageLatex, MessageSystem:
		return MessageType(s)
	default:
		return MessageText
	}
}

type Message struct {
	ID        MessageID   `json:"id"`
	RoomID    RoomID      `json:"room_id"`
	User      User        `json:"user"`
	Content   string      `json:"content"`
	Type      MessageType `json:"message_type"`
	ParentID  MessageID   `json:"parent_id,omitempty"`
	HasLatex  bool        `json:"has_latex"`
	HasCode   bool        `json:"has_code"`
	CreatedAt time.Time   `json:"created_at"`
}

// ValidateContent trims and bounds user-authored message content.
func ValidateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrMessageEmpty
	}
	// The cap counts characters, not bytes: multibyte content within the
	// limit must pass.
	if utf8.RuneCountInString(content) > MaxMessageLen {
		return "", ErrMessageTooLong
	}
	return content, nil
}

// DetectMarkup flags LaTeX and code spans the same way the composer does.
func DetectMarkup(content string) (hasLatex, hasCode bool) {
	hasLatex = strings.Contains(content, "$")
	hasCode = strings.Contains(content, "`")
	return hasLatex, hasCode
}
