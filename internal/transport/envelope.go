package transport

import (
	"encoding/json"
	"time"

	"github.com/purgarr/purgarr/pkg/message"
)

// MsgType discriminates bridge protocol envelopes.
type MsgType string

// Bridge protocol message types.
const (
	// Bridge → client.
	MsgQR      MsgType = "qr"      // pairing code for first-time linking
	MsgPaired  MsgType = "paired"  // credentials issued after pairing
	MsgOpen    MsgType = "open"    // session is established
	MsgMessage MsgType = "message" // inbound user message
	MsgSent    MsgType = "sent"    // acknowledgement of a send request
	MsgLogout  MsgType = "logout"  // server-side logout, session is dead

	// Client → bridge.
	MsgSend MsgType = "send"
)

// Envelope is the framing for all bridge protocol messages.
type Envelope struct {
	Type      MsgType         `json:"type"`
	ID        string          `json:"id,omitempty"` // correlation id for send/sent
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// QRPayload carries a pairing code to display to the operator.
type QRPayload struct {
	Code string `json:"code"`
}

// PairedPayload carries the credentials issued by the bridge after pairing.
// The credential blob is opaque to the client and persisted verbatim.
type PairedPayload struct {
	Credentials json.RawMessage `json:"credentials"`
}

// OpenPayload announces an established session.
type OpenPayload struct {
	SessionID string `json:"session_id"`
}

// SendPayload asks the bridge to deliver a text message.
type SendPayload struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// SentPayload acknowledges a send request with the platform message id.
type SentPayload struct {
	MessageID string `json:"message_id"`
}

// LogoutPayload explains a server-side logout.
type LogoutPayload struct {
	Reason string `json:"reason,omitempty"`
}

// decodeInbound extracts the inbound message from a MsgMessage envelope.
func decodeInbound(env Envelope) (message.InboundMessage, error) {
	var msg message.InboundMessage
	err := json.Unmarshal(env.Payload, &msg)
	return msg, err
}
