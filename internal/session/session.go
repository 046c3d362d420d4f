// Package session implements the advisor chat session core: room membership,
// message stream reconciliation, roster enrichment, and typing state. A view
// layer reads snapshots and dispatches intents; all state here is owned by the
// Session and guarded by a single mutex.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
	"github.com/phamnguyen1700/fit-ai-chat/internal/realtime"
)

const historyPageSize = 100

var ErrNoActiveConversation = errors.New("session: no conversation selected")

// backend is the REST surface the session consumes.
type backend interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID string, skip, take int) ([]models.ChatMessage, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	GetAdvisorProfile(ctx context.Context, advisorID string) (*models.AdvisorProfile, error)
}

// connection is the realtime surface. *realtime.Manager satisfies it.
type connection interface {
	SetHandlers(realtime.Handlers)
	Start(token string)
	Stop()
	State() models.ConnectionState
	JoinConversation(ctx context.Context, conversationID string) error
	LeaveConversation(ctx context.Context, conversationID string) error
	SendMessage(ctx context.Context, conversationID, content, messageType string) error
	MarkAsRead(ctx context.Context, conversationID string) error
	Typing(conversationID string) error
	StopTyping(conversationID string) error
}

// Session coordinates the chat state for one authenticated participant.
type Session struct {
	api    backend
	conn   connection
	token  string
	typing *TypingTracker

	mu         sync.Mutex
	active     string
	generation int
	messages   []models.ChatMessage
	roster     []models.ConversationSummary
	loading    bool
	sending    bool
	connState  models.ConnectionState
	onUpdate   func()
}

func New(api backend, conn connection, token string) *Session {
	s := &Session{
		api:       api,
		conn:      conn,
		token:     token,
		connState: models.StateDisconnected,
	}
	s.typing = NewTypingTracker(conn, s.notify)
	return s
}

// SetOnUpdate registers the view's change notification. Call before Start.
func (s *Session) SetOnUpdate(fn func()) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Start registers the push handlers, brings the connection up, and loads the
// initial roster. Without a token the connection attempt is skipped entirely
// and the session stays read-only on whatever REST allows.
func (s *Session) Start(ctx context.Context) {
	s.conn.SetHandlers(realtime.Handlers{
		OnMessage:         s.handleMessage,
		OnUserOnline:      s.handlePresence,
		OnUserOffline:     s.handlePresence,
		OnTyping:          s.typing.HandleTyping,
		OnStopTyping:      s.typing.HandleStopTyping,
		OnMessagesRead:    s.handleMessagesRead,
		OnConnectionState: s.handleConnectionState,
	})
	s.conn.Start(s.token)
	s.RefreshRoster(ctx)
}

// Close tears the session down: pending typing state is flushed and the
// connection is stopped.
func (s *Session) Close() {
	s.typing.Close()
	s.conn.Stop()
}

// SelectConversation switches the active room. The previous room is left
// before the new one is joined, the local message list is cleared the moment
// the switch begins, and after a successful join the conversation is marked
// read over REST and then over the push channel. A failed join leaves the
// conversation selected so re-selecting retries it.
func (s *Session) SelectConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	prev := s.active
	s.active = conversationID
	s.messages = nil
	s.loading = true
	s.generation++
	gen := s.generation
	s.mu.Unlock()
	s.notify()

	if prev != "" && prev != conversationID {
		if err := s.conn.LeaveConversation(ctx, prev); err != nil {
			log.Printf("session: leave conversation %s failed: %v", prev, err)
		}
	}

	joinErr := s.conn.JoinConversation(ctx, conversationID)
	if joinErr != nil {
		log.Printf("session: join conversation %s failed: %v", conversationID, joinErr)
	} else {
		s.markRead(ctx, conversationID)
	}

	s.loadHistory(ctx, conversationID, gen)
	return joinErr
}

// markRead acknowledges the conversation over REST first, then over the push
// channel. Both are best effort; local unread drops to zero only after the
// REST ack succeeds.
func (s *Session) markRead(ctx context.Context, conversationID string) {
	if err := s.api.MarkConversationRead(ctx, conversationID); err != nil {
		log.Printf("session: mark conversation %s read failed: %v", conversationID, err)
	} else {
		s.mu.Lock()
		for i := range s.roster {
			if s.roster[i].ID == conversationID {
				s.roster[i].UnreadCount = 0
			}
		}
		s.mu.Unlock()
		s.notify()
	}

	if err := s.conn.MarkAsRead(ctx, conversationID); err != nil {
		log.Printf("session: mark-as-read push for %s failed: %v", conversationID, err)
	}
}

// loadHistory fetches the conversation's history page and installs it only if
// no newer selection superseded this one (generation guard).
func (s *Session) loadHistory(ctx context.Context, conversationID string, gen int) {
	messages, err := s.api.ListMessages(ctx, conversationID, 0, historyPageSize)
	if err != nil {
		log.Printf("session: load messages for %s failed: %v", conversationID, err)
		s.mu.Lock()
		if s.generation == gen {
			s.loading = false
		}
		s.mu.Unlock()
		s.notify()
		return
	}

	// History entries that arrive without a usable sender name get the same
	// secondary lookup as pushed messages; already-enriched names are trusted.
	for i := range messages {
		if messages[i].SenderName == "" || messages[i].SenderName == models.DefaultDisplayName {
			messages[i].SenderName = s.resolveSenderName(ctx, messages[i].SenderID, messages[i].SenderRole)
		}
	}

	s.mu.Lock()
	if s.generation == gen && s.active == conversationID {
		s.messages = messages
		s.loading = false
	}
	s.mu.Unlock()
	s.notify()
}

// SendMessage sends to the active conversation. The sending flag clears
// whether or not delivery succeeds; the persisted message arrives via push.
func (s *Session) SendMessage(ctx context.Context, content, messageType string) error {
	s.mu.Lock()
	conversationID := s.active
	if conversationID == "" {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}
	s.sending = true
	s.mu.Unlock()
	s.notify()

	err := s.conn.SendMessage(ctx, conversationID, content, messageType)

	s.mu.Lock()
	s.sending = false
	s.mu.Unlock()
	s.notify()

	if err != nil {
		log.Printf("session: send message failed: %v", err)
	}
	return err
}

// Keystroke reports local composer input for the active conversation.
func (s *Session) Keystroke() {
	s.mu.Lock()
	conversationID := s.active
	s.mu.Unlock()
	s.typing.Keystroke(conversationID)
}

// handleMessage merges a pushed message into the active list. The sender name
// is resolved before insertion and messages already present by id are skipped.
func (s *Session) handleMessage(message models.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	message.SenderName = s.resolveSenderName(ctx, message.SenderID, message.SenderRole)
	cancel()

	s.mu.Lock()
	if message.ConversationID == s.active {
		duplicate := false
		for i := range s.messages {
			if s.messages[i].ID == message.ID {
				duplicate = true
				break
			}
		}
		if !duplicate {
			s.messages = append(s.messages, message)
		}
	}
	s.mu.Unlock()
	s.notify()

	// A new message anywhere invalidates the roster (previews, unread counts).
	go s.RefreshRoster(context.Background())
}

// handleMessagesRead applies a read receipt to every held message of the
// conversation in one pass.
func (s *Session) handleMessagesRead(conversationID string) {
	now := time.Now().UTC()

	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ConversationID == conversationID && !s.messages[i].IsRead {
			s.messages[i].IsRead = true
			readAt := now
			s.messages[i].ReadAt = &readAt
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) handlePresence(string) {
	go s.RefreshRoster(context.Background())
}

// handleConnectionState tracks the coarse state and re-joins the active room
// after a recovery, since the server forgot the membership.
func (s *Session) handleConnectionState(state models.ConnectionState) {
	s.mu.Lock()
	reconnected := state == models.StateConnected && s.connState == models.StateReconnecting
	s.connState = state
	active := s.active
	s.mu.Unlock()
	s.notify()

	if reconnected && active != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.conn.JoinConversation(ctx, active); err != nil {
				log.Printf("session: rejoin conversation %s failed: %v", active, err)
			}
		}()
	}
}

// resolveSenderName looks the sender up by role. Failures fall back to the
// generic placeholder and are never surfaced.
func (s *Session) resolveSenderName(ctx context.Context, senderID, senderRole string) string {
	if senderRole == models.RoleAdvisor {
		profile, err := s.api.GetAdvisorProfile(ctx, senderID)
		if err != nil {
			log.Printf("session: advisor lookup failed for %s: %v", senderID, err)
			return models.DefaultDisplayName
		}
		return profile.DisplayName()
	}

	profile, err := s.api.GetUserProfile(ctx, senderID)
	if err != nil {
		log.Printf("session: user lookup failed for %s: %v", senderID, err)
		return models.DefaultDisplayName
	}
	return profile.DisplayName()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ActiveConversation returns the currently selected conversation id.
func (s *Session) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns a snapshot of the reconciled message list, in insertion
// order.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Conversations returns a snapshot of the enriched roster.
func (s *Session) Conversations() []models.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationSummary, len(s.roster))
	copy(out, s.roster)
	return out
}

// Stats recomputes the roster counters from the current roster.
func (s *Session) Stats() models.RosterStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ComputeStats(s.roster)
}

// TypingUsers returns the remote participants typing in a conversation.
func (s *Session) TypingUsers(conversationID string) []models.TypingSignal {
	return s.typing.Active(conversationID)
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

func (s *Session) ConnectionState() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}
