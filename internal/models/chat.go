package models

import "time"

// Roles of conversation participants.
const (
	RoleAdvisor = "advisor"
	RoleUser    = "user"
)

// Message type discriminators. Unknown values are preserved and render as text.
const (
	MessageTypeText         = "text"
	MessageTypeExercisePlan = "exercise_plan"
	MessageTypeMealPlan     = "meal_plan"
)

// Presence statuses reported on conversation summaries.
const (
	PresenceOnline  = "online"
	PresenceBusy    = "busy"
	PresenceOffline = "offline"
)

// DefaultDisplayName is the placeholder shown until a profile lookup resolves.
const DefaultDisplayName = "User"

type ExercisePlan struct {
	Name            string `json:"name"`
	Sets            int    `json:"sets"`
	Reps            int    `json:"reps"`
	Category        string `json:"category"`
	VideoURL        string `json:"video_url,omitempty"`
	Note            string `json:"note,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type MealPlan struct {
	DayNumber int      `json:"day_number"`
	MealType  string   `json:"meal_type"`
	Calories  int      `json:"calories"`
	Protein   float64  `json:"protein"`
	Carbs     float64  `json:"carbs"`
	Fat       float64  `json:"fat"`
	Foods     []string `json:"foods"`
}

type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type ChatMessage struct {
	ID               string        `json:"id"`
	ConversationID   string        `json:"conversation_id"`
	SenderID         string        `json:"sender_id"`
	SenderRole       string        `json:"sender_role"`
	SenderName       string        `json:"sender_name,omitempty"`
	Content          string        `json:"content"`
	MessageType      string        `json:"message_type"`
	ExercisePlan     *ExercisePlan `json:"exercise_plan,omitempty"`
	MealPlan         *MealPlan     `json:"meal_plan,omitempty"`
	Attachment       *Attachment   `json:"attachment,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	IsRead           bool          `json:"is_read"`
	ReadAt           *time.Time    `json:"read_at,omitempty"`
	IsEdited         bool          `json:"is_edited"`
	EditedAt         *time.Time    `json:"edited_at,omitempty"`
	ReplyToMessageID string        `json:"reply_to_message_id,omitempty"`
}

// PayloadKind classifies a message for rendering.
type PayloadKind int

const (
	KindText PayloadKind = iota
	KindExercisePlan
	KindMealPlan
)

// Kind selects the rendering variant by message type alone. A structured type
// missing its payload, or an unrecognized type, falls back to text.
func (m *ChatMessage) Kind() PayloadKind {
	switch m.MessageType {
	case MessageTypeExercisePlan:
		if m.ExercisePlan != nil {
			return KindExercisePlan
		}
	case MessageTypeMealPlan:
		if m.MealPlan != nil {
			return KindMealPlan
		}
	}
	return KindText
}

type ConversationSummary struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	AdvisorID          string     `json:"advisor_id"`
	DisplayName        string     `json:"display_name"`
	DisplayEmail       string     `json:"display_email,omitempty"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
	Presence           string     `json:"presence"`
}

func (c *ConversationSummary) Online() bool {
	return c.Presence == PresenceOnline
}

type TypingSignal struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
}

// RosterStats are derived counters over the current roster, recomputed on every
// roster change.
type RosterStats struct {
	Total        int `json:"total"`
	Unread       int `json:"unread"`
	Online       int `json:"online"`
	OnlineOrBusy int `json:"online_or_busy"`
}
