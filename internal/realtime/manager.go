package realtime

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	ackWait    = 5 * time.Second

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrAckTimeout   = errors.New("realtime: server did not acknowledge operation")
)

// Manager owns the single authenticated realtime connection. It is constructed
// explicitly and disposed with Stop; the session layer injects one instance.
type Manager struct {
	wsURL  string
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	state    models.ConnectionState
	handlers Handlers
	pending  map[string]chan error
	done     chan struct{}
	started  bool

	writeMu sync.Mutex
}

func NewManager(wsURL string) *Manager {
	return &Manager{
		wsURL:   wsURL,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:   models.StateDisconnected,
		pending: make(map[string]chan error),
	}
}

// SetHandlers registers the complete callback set. The previous set is
// replaced wholesale; register before Start to avoid dropping early events.
func (m *Manager) SetHandlers(h Handlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()
}

// Start establishes the connection authenticated with token. It is idempotent;
// with an empty token no connection attempt is made at all, since there is no
// identity to join rooms under.
func (m *Manager) Start(token string) {
	if token == "" {
		log.Println("realtime: no auth token available, skipping connection")
		return
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.run(token, done)
}

// Stop tears the connection down. Safe to call even if never started.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.done)
	conn := m.conn
	m.conn = nil
	m.failPendingLocked(ErrNotConnected)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.setState(models.StateDisconnected)
}

func (m *Manager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// run drives the connect/read/reconnect loop until Stop closes done or an
// unrecoverable auth error occurs.
func (m *Manager) run(token string, done chan struct{}) {
	backoff := initialBackoff
	firstAttempt := true

	for {
		select {
		case <-done:
			return
		default:
		}

		if firstAttempt {
			m.setState(models.StateConnecting)
		}

		conn, err := m.dial(token)
		if err != nil {
			if isAuthError(err) {
				log.Printf("realtime: authentication rejected: %v", err)
				m.setState(models.StateFailed)
				return
			}
			log.Printf("realtime: connect failed, retrying in %s: %v", backoff, err)
			m.setState(models.StateReconnecting)
			firstAttempt = false
			select {
			case <-done:
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.setState(models.StateConnected)
		backoff = initialBackoff
		firstAttempt = false

		m.readLoop(conn, done)

		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.failPendingLocked(ErrNotConnected)
		m.mu.Unlock()
		_ = conn.Close()

		select {
		case <-done:
			return
		default:
			m.setState(models.StateReconnecting)
		}
	}
}

func (m *Manager) dial(token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.dialer.Dial(m.wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &authError{status: resp.StatusCode}
		}
		return nil, err
	}
	return conn, nil
}

func (m *Manager) readLoop(conn *websocket.Conn, done chan struct{}) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go m.pingLoop(conn, stopPing, done)

	for {
		var frame ServerFrame
		if err := conn.ReadJSON(&frame); err != nil {
			select {
			case <-done:
			default:
				log.Printf("realtime: read failed: %v", err)
			}
			return
		}
		m.dispatch(frame)
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, stop, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		case <-done:
			return
		}
	}
}

func (m *Manager) dispatch(frame ServerFrame) {
	switch frame.Type {
	case FrameAck:
		m.settleAck(frame)
		return
	case FrameError:
		log.Printf("realtime: server error: %s", frame.Error)
		return
	}

	h := m.currentHandlers()
	switch frame.Type {
	case FrameMessage:
		if frame.Message != nil && h.OnMessage != nil {
			h.OnMessage(*frame.Message)
		}
	case FrameUserOnline:
		if h.OnUserOnline != nil {
			h.OnUserOnline(frame.UserID)
		}
	case FrameUserOffline:
		if h.OnUserOffline != nil {
			h.OnUserOffline(frame.UserID)
		}
	case FrameTyping:
		if h.OnTyping != nil {
			h.OnTyping(models.TypingSignal{
				ConversationID: frame.ConversationID,
				UserID:         frame.UserID,
				UserName:       frame.UserName,
			})
		}
	case FrameStopTyping:
		if h.OnStopTyping != nil {
			h.OnStopTyping(frame.ConversationID, frame.UserID)
		}
	case FrameMessagesRead:
		if h.OnMessagesRead != nil {
			h.OnMessagesRead(frame.ConversationID)
		}
	default:
		log.Printf("realtime: unknown frame type %q", frame.Type)
	}
}

// JoinConversation requests room membership and waits for the server ack.
func (m *Manager) JoinConversation(ctx context.Context, conversationID string) error {
	return m.sendAcked(ctx, ClientFrame{Type: FrameJoin, ConversationID: conversationID})
}

// LeaveConversation requests leaving the room and waits for the server ack.
func (m *Manager) LeaveConversation(ctx context.Context, conversationID string) error {
	return m.sendAcked(ctx, ClientFrame{Type: FrameLeave, ConversationID: conversationID})
}

// SendMessage delivers a chat message and waits for the server ack. The
// persisted message arrives back on the push channel.
func (m *Manager) SendMessage(ctx context.Context, conversationID, content, messageType string) error {
	return m.sendAcked(ctx, ClientFrame{
		Type:           FrameMessage,
		ConversationID: conversationID,
		Content:        content,
		MessageType:    messageType,
	})
}

// MarkAsRead notifies the other participant that the conversation was read.
func (m *Manager) MarkAsRead(ctx context.Context, conversationID string) error {
	return m.sendAcked(ctx, ClientFrame{Type: FrameMarkRead, ConversationID: conversationID})
}

// Typing signals local typing activity. Fire and forget.
func (m *Manager) Typing(conversationID string) error {
	return m.write(ClientFrame{Type: FrameTyping, ConversationID: conversationID})
}

// StopTyping signals the end of local typing activity. Fire and forget.
func (m *Manager) StopTyping(conversationID string) error {
	return m.write(ClientFrame{Type: FrameStopTyping, ConversationID: conversationID})
}

func (m *Manager) sendAcked(ctx context.Context, frame ClientFrame) error {
	key := frame.Type + ":" + frame.ConversationID
	ack := make(chan error, 1)

	m.mu.Lock()
	if m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.pending[key] = ack
	m.mu.Unlock()

	if err := m.write(frame); err != nil {
		m.mu.Lock()
		delete(m.pending, key)
		m.mu.Unlock()
		return err
	}

	select {
	case err := <-ack:
		return err
	case <-time.After(ackWait):
		m.mu.Lock()
		delete(m.pending, key)
		m.mu.Unlock()
		return ErrAckTimeout
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, key)
		m.mu.Unlock()
		return ctx.Err()
	}
}

func (m *Manager) settleAck(frame ServerFrame) {
	key := frame.Op + ":" + frame.ConversationID

	m.mu.Lock()
	ack, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if frame.OK {
		ack <- nil
	} else {
		ack <- errors.New(frame.Error)
	}
}

func (m *Manager) write(frame ClientFrame) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

func (m *Manager) setState(state models.ConnectionState) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	h := m.handlers
	m.mu.Unlock()

	if h.OnConnectionState != nil {
		h.OnConnectionState(state)
	}
}

func (m *Manager) currentHandlers() Handlers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers
}

func (m *Manager) failPendingLocked(err error) {
	for key, ack := range m.pending {
		ack <- err
		delete(m.pending, key)
	}
}

type authError struct {
	status int
}

func (e *authError) Error() string {
	return "handshake rejected with status " + http.StatusText(e.status)
}

func isAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}
