// Package transport owns the single persistent bridge connection. It
// classifies disconnects as fatal or transient, reconnects transient
// failures with jittered exponential backoff, and re-binds message
// handlers after every reconnect.
package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/purgarr/purgarr/pkg/message"
)

// exitCodeReset is the distinguished exit status for fatal disconnects.
// The supervisor restarts the process; the next boot observes the reset
// marker and discards credentials before reconnecting.
const exitCodeReset = 100

// State is the connection session lifecycle state.
type State string

// Session states.
const (
	StateUninitialized State = "uninitialized"
	StateConnecting    State = "connecting"
	StateOpen          State = "open"
	StateReconnecting  State = "reconnecting"
	StateTerminated    State = "terminated"
)

// Handler is invoked for every inbound notify message while a session is
// open. Handlers may block on I/O; each delivery runs in its own goroutine,
// so handlers must be safe under concurrent invocation.
type Handler func(msg message.InboundMessage)

// MetricsRecorder counts transport-level events. Nil-safe implementations
// are expected.
type MetricsRecorder interface {
	RecordReconnect(fatal bool)
}

// Options configures a Manager.
type Options struct {
	BridgeURL  string
	SessionDir string

	// Reconnect policy. Zero values fall back to package defaults.
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	FailureWindow  time.Duration

	// Dial overrides the production dialer. Tests inject fakes.
	Dial DialFunc

	Logger *slog.Logger
}

type handlerReg struct {
	id        string
	fn        Handler
	boundSeq  int64 // session sequence this handler is bound to
	everBound bool
}

// sendResult resolves one in-flight send: the bridge's ack, or the error
// that ended the session while the ack was outstanding.
type sendResult struct {
	id  string
	err error
}

// Manager owns at most one live bridge connection at a time. All sends pass
// through it; it never buffers messages.
type Manager struct {
	opts    Options
	logger  *slog.Logger
	dial    DialFunc
	metrics MetricsRecorder

	// Injectable for tests.
	now    func() time.Time
	jitter func() time.Duration
	exit   func(code int)

	mu             sync.Mutex
	state          State
	conn           Conn
	session        int64 // increments per dialed connection; session identity
	handlers       []*handlerReg
	pendingSends   map[string]chan sendResult
	retry          retryState
	reconnectTimer *time.Timer
	reconnecting   bool
	qrHandler      func(code string)
}

// NewManager creates a Manager. Connect must be called to establish the
// session.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BackoffFloor <= 0 {
		opts.BackoffFloor = defaultBackoffFloor
	}
	if opts.BackoffCeiling <= 0 {
		opts.BackoffCeiling = defaultBackoffCeiling
	}
	if opts.FailureWindow <= 0 {
		opts.FailureWindow = defaultFailureWindow
	}
	dial := opts.Dial
	if dial == nil {
		dial = DialBridge
	}

	return &Manager{
		opts:   opts,
		logger: opts.Logger,
		dial:   dial,
		now:    time.Now,
		jitter: func() time.Duration {
			return time.Duration(mathrand.Int64N(int64(defaultJitterMax)))
		},
		exit:         os.Exit,
		state:        StateUninitialized,
		pendingSends: make(map[string]chan sendResult),
		retry:        newRetryState(opts.BackoffFloor, opts.BackoffCeiling, opts.FailureWindow),
	}
}

// SetMetrics attaches an optional metrics recorder.
func (m *Manager) SetMetrics(rec MetricsRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = rec
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnMessage registers a handler under a stable id. Handlers registered
// before any session exists are retained and re-bound against every future
// session; a handler is bound at most once per session identity, so
// duplicate registrations of the same id never cause duplicate deliveries.
func (m *Manager) OnMessage(id string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, reg := range m.handlers {
		if reg.id == id {
			reg.fn = fn
			return
		}
	}

	reg := &handlerReg{id: id, fn: fn}
	if m.state == StateOpen {
		reg.boundSeq = m.session
		reg.everBound = true
	}
	m.handlers = append(m.handlers, reg)
}

// OnQR registers the pairing side-channel callback, invoked with each QR
// code the bridge emits during first-time linking.
func (m *Manager) OnQR(fn func(code string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qrHandler = fn
}

// Connect establishes a new bridge session, replacing any prior handle.
// It is idempotent: calling it while a session is connecting or open is a
// no-op. Credential storage failures are fatal local errors and are not
// retried.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateOpen:
		m.mu.Unlock()
		return nil
	case StateTerminated:
		m.mu.Unlock()
		return ErrTerminated
	}
	m.state = StateConnecting
	m.mu.Unlock()

	if err := m.establish(ctx); err != nil {
		m.mu.Lock()
		if m.state == StateConnecting {
			m.state = StateUninitialized
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// establish dials the bridge and starts the read loop for the new session.
// The session is not open until the bridge confirms with an open envelope.
func (m *Manager) establish(ctx context.Context) error {
	creds, err := LoadCredentials(m.opts.SessionDir)
	if err != nil {
		return err
	}

	conn, err := m.dial(ctx, m.opts.BridgeURL, creds)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
		return ErrTerminated
	}
	m.conn = conn
	m.session++
	seq := m.session
	m.mu.Unlock()

	go m.readLoop(seq, conn)
	return nil
}

// readLoop consumes envelopes for one session until it fails or goes stale.
func (m *Manager) readLoop(seq int64, conn Conn) {
	ctx := context.Background()
	for {
		env, err := conn.Read(ctx)
		if err != nil {
			m.mu.Lock()
			stale := seq != m.session || m.state == StateTerminated
			m.mu.Unlock()
			if stale {
				return
			}
			m.handleDisconnect(err)
			return
		}
		m.dispatch(seq, env)
	}
}

func (m *Manager) dispatch(seq int64, env Envelope) {
	switch env.Type {
	case MsgOpen:
		m.sessionOpened(seq, env)

	case MsgQR:
		var qr QRPayload
		if err := json.Unmarshal(env.Payload, &qr); err != nil {
			m.logger.Warn("malformed qr envelope", "error", err)
			return
		}
		m.mu.Lock()
		fn := m.qrHandler
		m.mu.Unlock()
		if fn != nil {
			fn(qr.Code)
		}

	case MsgPaired:
		var paired PairedPayload
		if err := json.Unmarshal(env.Payload, &paired); err != nil {
			m.logger.Warn("malformed paired envelope", "error", err)
			return
		}
		if err := SaveCredentials(m.opts.SessionDir, paired.Credentials); err != nil {
			m.logger.Error("persisting credentials failed", "error", err)
			return
		}
		m.logger.Info("bridge pairing complete, credentials stored")

	case MsgMessage:
		msg, err := decodeInbound(env)
		if err != nil {
			m.logger.Warn("malformed message envelope", "error", err)
			return
		}
		if msg.FromSelf || msg.Delivery != message.DeliveryNotify {
			return
		}
		m.deliver(seq, msg)

	case MsgSent:
		var sent SentPayload
		if err := json.Unmarshal(env.Payload, &sent); err != nil {
			m.logger.Warn("malformed sent envelope", "error", err)
			return
		}
		m.mu.Lock()
		ch, ok := m.pendingSends[env.ID]
		delete(m.pendingSends, env.ID)
		m.mu.Unlock()
		if ok {
			ch <- sendResult{id: sent.MessageID}
		}

	case MsgLogout:
		var logout LogoutPayload
		_ = json.Unmarshal(env.Payload, &logout)
		m.logger.Warn("bridge signalled logout", "reason", logout.Reason)
		m.fatal()

	default:
		m.logger.Debug("ignoring unknown envelope", "type", string(env.Type))
	}
}

// sessionOpened transitions into open: resets the retry window and binds
// every retained handler to the new session identity exactly once.
func (m *Manager) sessionOpened(seq int64, env Envelope) {
	var open OpenPayload
	_ = json.Unmarshal(env.Payload, &open)

	m.mu.Lock()
	if seq != m.session || m.state == StateTerminated {
		m.mu.Unlock()
		return
	}
	m.state = StateOpen
	m.reconnecting = false
	m.retry.reset(m.now())
	bound := 0
	for _, reg := range m.handlers {
		if reg.boundSeq != seq || !reg.everBound {
			reg.boundSeq = seq
			reg.everBound = true
			bound++
		}
	}
	m.mu.Unlock()

	m.logger.Info("bridge session open", "session_id", open.SessionID, "handlers", bound)
}

// deliver fans an inbound message out to the handlers bound to this session.
func (m *Manager) deliver(seq int64, msg message.InboundMessage) {
	m.mu.Lock()
	var fns []Handler
	if m.state == StateOpen && seq == m.session {
		for _, reg := range m.handlers {
			if reg.everBound && reg.boundSeq == seq {
				fns = append(fns, reg.fn)
			}
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		go fn(msg)
	}
}

// Send delivers a text message through the current session and returns the
// platform message id from the bridge's acknowledgement. It fails fast with
// ErrNotConnected when no session is open; the manager never queues.
func (m *Manager) Send(ctx context.Context, out message.OutboundMessage) (string, error) {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return "", ErrNotConnected
	}
	conn := m.conn

	corr, err := newCorrelationID()
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	ch := make(chan sendResult, 1)
	m.pendingSends[corr] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pendingSends, corr)
		m.mu.Unlock()
	}()

	payload, _ := json.Marshal(SendPayload{
		ChatID:    out.ChatID,
		Text:      out.Text,
		ReplyToID: out.ReplyToID,
	})
	env := Envelope{Type: MsgSend, ID: corr, Payload: payload, Timestamp: m.now()}
	if err := conn.Write(ctx, env); err != nil {
		return "", fmt.Errorf("transport: send: %w", err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return "", res.err
		}
		return res.id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// failPendingSendsLocked resolves every outstanding send with err so no
// caller waits on an ack the dead session can never deliver. Callers hold
// m.mu. Each waiter channel is buffered and resolved exactly once.
func (m *Manager) failPendingSendsLocked(err error) {
	for corr, ch := range m.pendingSends {
		ch <- sendResult{err: err}
		delete(m.pendingSends, corr)
	}
}

// handleDisconnect classifies a session failure and either escalates to the
// fatal path or schedules a jittered backoff reconnect.
func (m *Manager) handleDisconnect(err error) {
	loggedOut := isLoggedOut(err)

	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.failPendingSendsLocked(ErrNotConnected)
	attempts := m.retry.observeFailure(m.now())

	if loggedOut || attempts >= fatalAfterFailures {
		m.mu.Unlock()
		m.logger.Warn("fatal disconnect",
			"error", err,
			"logged_out", loggedOut,
			"attempts", attempts,
		)
		m.fatal()
		return
	}

	if m.reconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	m.state = StateReconnecting
	delay := m.retry.nextDelay(m.jitter())
	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
	rec := m.metrics
	m.mu.Unlock()

	if rec != nil {
		rec.RecordReconnect(false)
	}
	m.logger.Warn("transient disconnect, reconnecting",
		"error", err,
		"attempts", attempts,
		"delay", delay,
	)
}

// reconnect is the timer callback for transient failures. Dial errors feed
// back into the failure window so repeated unreachability escalates.
func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.reconnecting = false
	m.mu.Unlock()

	if err := m.establish(context.Background()); err != nil {
		m.logger.Error("reconnection failed", "error", err)
		m.handleDisconnect(err)
	}
}

// fatal performs the full-reset teardown: best-effort logout, persist the
// reset marker, and terminate the process with the distinguished exit
// status so the supervisor restarts it clean.
func (m *Manager) fatal() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.failPendingSendsLocked(ErrNotConnected)
	m.state = StateTerminated
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	rec := m.metrics
	m.mu.Unlock()

	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		payload, _ := json.Marshal(LogoutPayload{Reason: "credential reset"})
		_ = conn.Write(ctx, Envelope{Type: MsgLogout, Payload: payload, Timestamp: m.now()})
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "logout")
	}

	if err := MarkResetRequired(m.opts.SessionDir); err != nil {
		m.logger.Error("writing reset marker failed", "error", err)
	}
	if rec != nil {
		rec.RecordReconnect(true)
	}
	m.logger.Warn("session reset required, exiting for supervisor restart", "exit_code", exitCodeReset)
	m.exit(exitCodeReset)
}

// Close terminates the session for process shutdown. Unlike fatal it does
// not mark a reset; the stored credentials remain valid for the next boot.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	if m.state == StateTerminated {
		m.mu.Unlock()
		return nil
	}
	m.state = StateTerminated
	conn := m.conn
	m.conn = nil
	m.failPendingSendsLocked(ErrNotConnected)
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
	return nil
}

// newCorrelationID returns a random id for send/sent correlation.
func newCorrelationID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("transport: correlation id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
