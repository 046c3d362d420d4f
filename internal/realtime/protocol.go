package realtime

import "github.com/phamnguyen1700/fit-ai-chat/internal/models"

// Frame types shared by the client and the dev server.
const (
	FrameJoin       = "join"
	FrameLeave      = "leave"
	FrameMessage    = "message"
	FrameTyping     = "typing"
	FrameStopTyping = "stop_typing"
	FrameMarkRead   = "mark_read"

	FrameAck          = "ack"
	FrameUserOnline   = "user_online"
	FrameUserOffline  = "user_offline"
	FrameMessagesRead = "messages_read"
	FrameError        = "error"
)

// ClientFrame is the client→server envelope.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
}

// ServerFrame is the server→client envelope. Fields are populated per frame
// type; Op/OK/Error only appear on acks.
type ServerFrame struct {
	Type           string              `json:"type"`
	Op             string              `json:"op,omitempty"`
	OK             bool                `json:"ok,omitempty"`
	Error          string              `json:"error,omitempty"`
	ConversationID string              `json:"conversation_id,omitempty"`
	UserID         string              `json:"user_id,omitempty"`
	UserName       string              `json:"user_name,omitempty"`
	Message        *models.ChatMessage `json:"message,omitempty"`
}

// Handlers is the complete set of push callbacks. Registration replaces the
// whole set; there is no per-event subscription.
type Handlers struct {
	OnMessage         func(models.ChatMessage)
	OnUserOnline      func(userID string)
	OnUserOffline     func(userID string)
	OnTyping          func(models.TypingSignal)
	OnStopTyping      func(conversationID, userID string)
	OnMessagesRead    func(conversationID string)
	OnConnectionState func(models.ConnectionState)
}
