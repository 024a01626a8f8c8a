package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Conn is a single bridge connection carrying JSON envelopes. The concrete
// implementation wraps a websocket; tests substitute scripted fakes.
type Conn interface {
	Read(ctx context.Context) (Envelope, error)
	Write(ctx context.Context, env Envelope) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc establishes a bridge connection. creds may be nil when the
// client has never paired; the bridge then starts the QR pairing flow.
type DialFunc func(ctx context.Context, url string, creds *Credentials) (Conn, error)

// wsConn adapts *websocket.Conn to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

// DialBridge is the production DialFunc. Credentials, when present, are
// passed as a bearer token so the bridge can resume the existing session.
func DialBridge(ctx context.Context, url string, creds *Credentials) (Conn, error) {
	opts := &websocket.DialOptions{}
	if creds != nil && creds.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + creds.Token}}
	}

	c, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	// Envelopes are small; the default 32 KiB read limit is enough, but
	// history payloads can exceed it.
	c.SetReadLimit(1 << 20)
	return &wsConn{conn: c}, nil
}

func (w *wsConn) Read(ctx context.Context) (Envelope, error) {
	_, data, err := w.conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("transport: decode envelope: %w", err)
	}
	return env, nil
}

func (w *wsConn) Write(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: encode envelope: %w", err)
	}
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close(code websocket.StatusCode, reason string) error {
	return w.conn.Close(code, reason)
}
