package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
)

var upgrader = websocket.Upgrader{}

// stateRecorder captures connection state transitions for assertions.
type stateRecorder struct {
	mu     sync.Mutex
	states []models.ConnectionState
}

func (r *stateRecorder) record(state models.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) has(state models.ConnectionState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == state {
			return true
		}
	}
	return false
}

func (r *stateRecorder) countOf(state models.ConnectionState) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func waitForCond(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ackingServer upgrades every request and acknowledges every acked operation.
func ackingServer(t *testing.T, onConn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if onConn != nil {
			onConn(conn)
		}
		for {
			var frame ClientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case FrameJoin, FrameLeave, FrameMessage, FrameMarkRead:
				_ = conn.WriteJSON(ServerFrame{
					Type:           FrameAck,
					Op:             frame.Type,
					OK:             true,
					ConversationID: frame.ConversationID,
				})
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartWithoutTokenSkipsConnection(t *testing.T) {
	m := NewManager("ws://localhost:0/api/v1/ws")
	m.Start("")

	if got := m.State(); got != models.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
	if err := m.JoinConversation(context.Background(), "a"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestJoinAckRoundTrip(t *testing.T) {
	srv := ackingServer(t, nil)
	defer srv.Close()

	m := NewManager(wsURL(srv))
	m.Start("token")
	defer m.Stop()

	waitForCond(t, "connected", func() bool { return m.State() == models.StateConnected })

	if err := m.JoinConversation(context.Background(), "conv-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.SendMessage(context.Background(), "conv-1", "hello", models.MessageTypeText); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestRejectedAckSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			var frame ClientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			_ = conn.WriteJSON(ServerFrame{
				Type:           FrameAck,
				Op:             frame.Type,
				OK:             false,
				Error:          "not a participant",
				ConversationID: frame.ConversationID,
			})
		}
	}))
	defer srv.Close()

	m := NewManager(wsURL(srv))
	m.Start("token")
	defer m.Stop()

	waitForCond(t, "connected", func() bool { return m.State() == models.StateConnected })

	err := m.JoinConversation(context.Background(), "conv-1")
	if err == nil || err.Error() != "not a participant" {
		t.Fatalf("expected server rejection to surface, got %v", err)
	}
}

func TestHandshakeAuthRejectionIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	recorder := &stateRecorder{}
	m := NewManager(wsURL(srv))
	m.SetHandlers(Handlers{OnConnectionState: recorder.record})
	m.Start("expired-token")
	defer m.Stop()

	waitForCond(t, "failed state", func() bool { return m.State() == models.StateFailed })
	if recorder.has(models.StateReconnecting) {
		t.Fatal("expected no reconnect attempts after auth rejection")
	}
}

func TestPushedFramesDispatchToHandlers(t *testing.T) {
	srv := ackingServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(ServerFrame{
			Type: FrameMessage,
			Message: &models.ChatMessage{
				ID:             "m1",
				ConversationID: "conv-1",
				Content:        "pushed",
			},
		})
		_ = conn.WriteJSON(ServerFrame{
			Type:           FrameTyping,
			ConversationID: "conv-1",
			UserID:         "u1",
			UserName:       "Alice",
		})
		_ = conn.WriteJSON(ServerFrame{Type: FrameMessagesRead, ConversationID: "conv-1"})
	})
	defer srv.Close()

	var mu sync.Mutex
	var messages []models.ChatMessage
	var typing []models.TypingSignal
	var readConvs []string

	m := NewManager(wsURL(srv))
	m.SetHandlers(Handlers{
		OnMessage: func(msg models.ChatMessage) {
			mu.Lock()
			messages = append(messages, msg)
			mu.Unlock()
		},
		OnTyping: func(signal models.TypingSignal) {
			mu.Lock()
			typing = append(typing, signal)
			mu.Unlock()
		},
		OnMessagesRead: func(conversationID string) {
			mu.Lock()
			readConvs = append(readConvs, conversationID)
			mu.Unlock()
		},
	})
	m.Start("token")
	defer m.Stop()

	waitForCond(t, "all pushes dispatched", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(messages) == 1 && len(typing) == 1 && len(readConvs) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if messages[0].ID != "m1" || messages[0].Content != "pushed" {
		t.Errorf("unexpected message: %+v", messages[0])
	}
	if typing[0].UserName != "Alice" || typing[0].ConversationID != "conv-1" {
		t.Errorf("unexpected typing signal: %+v", typing[0])
	}
	if readConvs[0] != "conv-1" {
		t.Errorf("unexpected read receipt: %v", readConvs)
	}
}

func TestTransientDropTriggersReconnect(t *testing.T) {
	var mu sync.Mutex
	accepted := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		accepted++
		first := accepted == 1
		mu.Unlock()
		if first {
			// Simulate a transient server-side drop.
			conn.Close()
			return
		}
		for {
			var frame ClientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	recorder := &stateRecorder{}
	m := NewManager(wsURL(srv))
	m.SetHandlers(Handlers{OnConnectionState: recorder.record})
	m.Start("token")
	defer m.Stop()

	waitForCond(t, "reconnected", func() bool {
		return recorder.has(models.StateReconnecting) && recorder.countOf(models.StateConnected) >= 2
	})
}

func TestStopFailsPendingOperations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Never acknowledge anything.
		for {
			var frame ClientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	m := NewManager(wsURL(srv))
	m.Start("token")
	waitForCond(t, "connected", func() bool { return m.State() == models.StateConnected })

	errs := make(chan error, 1)
	go func() { errs <- m.JoinConversation(context.Background(), "conv-1") }()

	time.Sleep(50 * time.Millisecond)
	m.Stop()

	select {
	case err := <-errs:
		if err != ErrNotConnected {
			t.Fatalf("expected ErrNotConnected, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending join never settled after Stop")
	}

	if got := m.State(); got != models.StateDisconnected {
		t.Fatalf("expected disconnected after stop, got %s", got)
	}
}
