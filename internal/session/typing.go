package session

import (
	"log"
	"sync"
	"time"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
)

const (
	// typingDebounce is the window of local silence after which a stop-typing
	// signal is emitted. Each keystroke restarts it.
	typingDebounce = 3 * time.Second

	// inboundTypingTTL expires remote typing indicators locally when the
	// server's stop event is lost.
	inboundTypingTTL = 6 * time.Second
)

type typingConn interface {
	Typing(conversationID string) error
	StopTyping(conversationID string) error
}

// TypingTracker drives outbound typing pings with debounce and maintains the
// set of remote participants currently typing.
type TypingTracker struct {
	conn       typingConn
	onChange   func()
	debounce   time.Duration
	inboundTTL time.Duration

	mu        sync.Mutex
	closed    bool
	outConv   string
	outActive bool
	outTimer  *time.Timer
	inbound   map[string]*inboundEntry
}

type inboundEntry struct {
	signal models.TypingSignal
	timer  *time.Timer
}

func NewTypingTracker(conn typingConn, onChange func()) *TypingTracker {
	return &TypingTracker{
		conn:       conn,
		onChange:   onChange,
		debounce:   typingDebounce,
		inboundTTL: inboundTypingTTL,
		inbound:    make(map[string]*inboundEntry),
	}
}

// Keystroke registers local input activity for the given conversation. The
// first keystroke of a burst sends a typing ping; the stop signal goes out
// after typingDebounce of silence.
func (t *TypingTracker) Keystroke(conversationID string) {
	t.mu.Lock()
	if t.closed || conversationID == "" {
		t.mu.Unlock()
		return
	}

	if t.outActive && t.outConv != conversationID {
		// Switched conversations mid-burst; settle the old room first.
		prev := t.outConv
		t.outActive = false
		if t.outTimer != nil {
			t.outTimer.Stop()
		}
		t.mu.Unlock()
		if err := t.conn.StopTyping(prev); err != nil {
			log.Printf("typing: stop signal failed: %v", err)
		}
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
	}

	startBurst := !t.outActive
	t.outConv = conversationID
	t.outActive = true
	if t.outTimer == nil {
		t.outTimer = time.AfterFunc(t.debounce, t.expireOutbound)
	} else {
		t.outTimer.Reset(t.debounce)
	}
	t.mu.Unlock()

	if startBurst {
		if err := t.conn.Typing(conversationID); err != nil {
			log.Printf("typing: ping failed: %v", err)
		}
	}
}

func (t *TypingTracker) expireOutbound() {
	t.mu.Lock()
	if t.closed || !t.outActive {
		t.mu.Unlock()
		return
	}
	conv := t.outConv
	t.outActive = false
	t.mu.Unlock()

	if err := t.conn.StopTyping(conv); err != nil {
		log.Printf("typing: stop signal failed: %v", err)
	}
}

// HandleTyping records a remote typing push. Duplicate signals for the same
// user and conversation only refresh the local expiry.
func (t *TypingTracker) HandleTyping(signal models.TypingSignal) {
	key := signal.ConversationID + "/" + signal.UserID

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if entry, ok := t.inbound[key]; ok {
		entry.timer.Reset(t.inboundTTL)
		t.mu.Unlock()
		return
	}
	t.inbound[key] = &inboundEntry{
		signal: signal,
		timer:  time.AfterFunc(t.inboundTTL, func() { t.expireInbound(key) }),
	}
	t.mu.Unlock()

	t.notify()
}

// HandleStopTyping removes a remote typing indicator.
func (t *TypingTracker) HandleStopTyping(conversationID, userID string) {
	key := conversationID + "/" + userID

	t.mu.Lock()
	entry, ok := t.inbound[key]
	if ok {
		entry.timer.Stop()
		delete(t.inbound, key)
	}
	t.mu.Unlock()

	if ok {
		t.notify()
	}
}

func (t *TypingTracker) expireInbound(key string) {
	t.mu.Lock()
	_, ok := t.inbound[key]
	if ok {
		delete(t.inbound, key)
	}
	t.mu.Unlock()

	if ok {
		t.notify()
	}
}

// Active returns the remote participants currently typing in a conversation.
func (t *TypingTracker) Active(conversationID string) []models.TypingSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var signals []models.TypingSignal
	for _, entry := range t.inbound {
		if entry.signal.ConversationID == conversationID {
			signals = append(signals, entry.signal)
		}
	}
	return signals
}

// Close cancels timers and flushes a pending stop signal.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	active := t.outActive
	conv := t.outConv
	if t.outTimer != nil {
		t.outTimer.Stop()
	}
	for key, entry := range t.inbound {
		entry.timer.Stop()
		delete(t.inbound, key)
	}
	t.mu.Unlock()

	if active {
		_ = t.conn.StopTyping(conv)
	}
}

func (t *TypingTracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
