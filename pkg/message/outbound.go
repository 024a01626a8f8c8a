package message

// OutboundMessage represents a message to be sent through the bridge.
type OutboundMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// NewText creates an outbound plain-text message for the given chat.
func NewText(chatID, text string) OutboundMessage {
	return OutboundMessage{ChatID: chatID, Text: text}
}

// NewReply creates an outbound message quoting the given message id.
func NewReply(chatID, replyToID, text string) OutboundMessage {
	return OutboundMessage{ChatID: chatID, Text: text, ReplyToID: replyToID}
}
