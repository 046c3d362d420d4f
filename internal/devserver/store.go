package devserver

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
)

var (
	ErrNotFound       = errors.New("devserver: not found")
	ErrNotParticipant = errors.New("devserver: not a conversation participant")
	ErrInvalidInput   = errors.New("devserver: invalid input")
)

type User struct {
	ID        string
	FirstName string
	LastName  string
	Username  string
	Email     string
	Role      string
}

type Conversation struct {
	ID        string
	UserID    string
	AdvisorID string
}

// Store is the in-memory backend state: users, conversations, messages, and
// presence. It stands in for the platform database during tests and local
// development.
type Store struct {
	mu            sync.Mutex
	users         map[string]*User
	conversations map[string]*Conversation
	messages      map[string][]models.ChatMessage
	presence      map[string]string
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]*User),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]models.ChatMessage),
		presence:      make(map[string]string),
	}
}

func (s *Store) AddUser(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.users[user.ID] = &u
}

func (s *Store) GetUser(id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *Store) AddConversation(userID, advisorID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		AdvisorID: advisorID,
	}
	s.conversations[conversation.ID] = conversation
	c := *conversation
	return &c
}

func (s *Store) IsParticipant(conversationID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	return conversation.UserID == userID || conversation.AdvisorID == userID
}

// Participants returns the user and advisor ids of a conversation.
func (s *Store) Participants(conversationID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return []string{conversation.UserID, conversation.AdvisorID}, nil
}

func (s *Store) SetPresence(userID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[userID] = status
}

// ListSummaries builds the conversation summaries for one participant: last
// message preview, unread count of counterpart messages, counterpart presence.
// Display names are left unresolved; clients enrich them via profile lookups.
func (s *Store) ListSummaries(actorID string) []models.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]models.ConversationSummary, 0)
	for _, conversation := range s.conversations {
		if conversation.UserID != actorID && conversation.AdvisorID != actorID {
			continue
		}

		counterpart := conversation.UserID
		if actorID == conversation.UserID {
			counterpart = conversation.AdvisorID
		}

		summary := models.ConversationSummary{
			ID:        conversation.ID,
			UserID:    conversation.UserID,
			AdvisorID: conversation.AdvisorID,
			Presence:  models.PresenceOffline,
		}
		if status, ok := s.presence[counterpart]; ok {
			summary.Presence = status
		}

		history := s.messages[conversation.ID]
		if len(history) > 0 {
			last := history[len(history)-1]
			summary.LastMessagePreview = preview(last)
			at := last.CreatedAt
			summary.LastMessageAt = &at
		}
		for i := range history {
			if history[i].SenderID != actorID && !history[i].IsRead {
				summary.UnreadCount++
			}
		}

		summaries = append(summaries, summary)
	}
	return summaries
}

func (s *Store) ListMessages(conversationID string, skip, take int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	history := s.messages[conversationID]
	if skip < 0 {
		skip = 0
	}
	if skip >= len(history) {
		return []models.ChatMessage{}, nil
	}
	end := len(history)
	if take > 0 && skip+take < end {
		end = skip + take
	}

	page := make([]models.ChatMessage, end-skip)
	copy(page, history[skip:end])
	return page, nil
}

// AppendMessage persists a message, assigning its id, timestamp, sender role
// and resolved sender name.
func (s *Store) AppendMessage(conversationID, senderID, content, messageType string) (*models.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidInput
	}
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	if conversation.UserID != senderID && conversation.AdvisorID != senderID {
		return nil, ErrNotParticipant
	}

	message := models.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     models.RoleUser,
		Content:        strings.TrimSpace(content),
		MessageType:    messageType,
		CreatedAt:      time.Now().UTC(),
	}
	if sender, ok := s.users[senderID]; ok {
		message.SenderRole = sender.Role
		message.SenderName = displayName(sender)
	}

	s.messages[conversationID] = append(s.messages[conversationID], message)
	m := message
	return &m, nil
}

// MarkRead marks every counterpart message in the conversation as read and
// reports how many changed.
func (s *Store) MarkRead(conversationID, readerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.conversations[conversationID]
	if !ok {
		return 0, ErrNotFound
	}
	if conversation.UserID != readerID && conversation.AdvisorID != readerID {
		return 0, ErrNotParticipant
	}

	now := time.Now().UTC()
	changed := 0
	history := s.messages[conversationID]
	for i := range history {
		if history[i].SenderID != readerID && !history[i].IsRead {
			history[i].IsRead = true
			readAt := now
			history[i].ReadAt = &readAt
			changed++
		}
	}
	return changed, nil
}

func preview(message models.ChatMessage) string {
	switch message.Kind() {
	case models.KindExercisePlan:
		return "Exercise plan: " + message.ExercisePlan.Name
	case models.KindMealPlan:
		return "Meal plan: " + message.MealPlan.MealType
	}
	content := message.Content
	if len(content) > 80 {
		content = content[:80]
	}
	return content
}

func displayName(user *User) string {
	profile := models.UserProfile{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		Email:     user.Email,
	}
	return profile.DisplayName()
}
