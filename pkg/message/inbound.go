package message

import (
	"strings"
	"time"
)

// InboundMessage represents a message received from the bridge.
type InboundMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id,omitempty"`
	Text      string    `json:"text"`
	ReplyToID string    `json:"reply_to_id,omitempty"`
	FromSelf  bool      `json:"from_self,omitempty"`
	Delivery  Delivery  `json:"delivery"`
	Timestamp time.Time `json:"timestamp"`
}

// TrimmedText returns the message text with surrounding whitespace removed.
func (m *InboundMessage) TrimmedText() string {
	return strings.TrimSpace(m.Text)
}

// IsQuoting reports whether the message quotes another message.
func (m *InboundMessage) IsQuoting() bool {
	return m.ReplyToID != ""
}
