package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/phamnguyen1700/fit-ai-chat/internal/api"
	"github.com/phamnguyen1700/fit-ai-chat/internal/config"
	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
	"github.com/phamnguyen1700/fit-ai-chat/internal/realtime"
	"github.com/phamnguyen1700/fit-ai-chat/internal/session"
	"github.com/phamnguyen1700/fit-ai-chat/pkg/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token := cfg.BearerToken()
	if token == "" {
		log.Fatal("CHAT_TOKEN (or CHAT_TOKEN_FILE) is required")
	}

	selfID := ""
	if cfg.JWTSecret != "" {
		if claims, err := utils.ValidateToken(token, cfg.JWTSecret); err == nil {
			selfID = claims.UserID
		}
	}

	restClient := api.NewClient(cfg.APIBaseURL, token)
	manager := realtime.NewManager(cfg.WSURL)
	sess := session.New(restClient, manager, token)

	updates := make(chan struct{}, 1)
	sess.SetOnUpdate(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})

	ctx := context.Background()
	sess.Start(ctx)
	defer sess.Close()

	go func() {
		for range updates {
			render(sess, selfID)
		}
	}()

	fmt.Println("fit-ai chat. Commands: /list, /select <n>, /quit. Anything else sends a message.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/list":
			renderRoster(sess)
		case strings.HasPrefix(line, "/select "):
			selectConversation(ctx, sess, strings.TrimPrefix(line, "/select "))
		default:
			sess.Keystroke()
			if err := sess.SendMessage(ctx, line, models.MessageTypeText); err != nil {
				fmt.Printf("! send failed: %v\n", err)
			}
		}
	}
}

func selectConversation(ctx context.Context, sess *session.Session, arg string) {
	index, err := strconv.Atoi(strings.TrimSpace(arg))
	conversations := sess.Conversations()
	if err != nil || index < 1 || index > len(conversations) {
		fmt.Println("! usage: /select <n> (see /list)")
		return
	}
	if err := sess.SelectConversation(ctx, conversations[index-1].ID); err != nil {
		fmt.Printf("! join failed (re-select to retry): %v\n", err)
	}
}

// renderRoster prints the sidebar: one line per conversation plus the
// aggregate counters.
func renderRoster(sess *session.Session) {
	conversations := sess.Conversations()
	stats := sess.Stats()

	fmt.Printf("-- conversations (%d, unread %d, online %d) --\n", stats.Total, stats.Unread, stats.Online)
	for i, conversation := range conversations {
		marker := " "
		if conversation.ID == sess.ActiveConversation() {
			marker = ">"
		}
		line := fmt.Sprintf("%s %d. %s", marker, i+1, conversation.DisplayName)
		if conversation.UnreadCount > 0 {
			line += fmt.Sprintf(" (%d unread)", conversation.UnreadCount)
		}
		if conversation.Online() {
			line += " [online]"
		}
		if conversation.LastMessagePreview != "" {
			line += " — " + conversation.LastMessagePreview
		}
		fmt.Println(line)
	}
}

// render paints the active conversation: header, bubbles, typing line.
func render(sess *session.Session, selfID string) {
	active := sess.ActiveConversation()
	if active == "" {
		return
	}

	fmt.Printf("== conversation %s [%s] ==\n", active, sess.ConnectionState())
	if sess.Loading() {
		fmt.Println("loading…")
		return
	}
	for _, message := range sess.Messages() {
		fmt.Println(renderMessage(message, selfID))
	}
	if typing := sess.TypingUsers(active); len(typing) > 0 {
		names := make([]string, 0, len(typing))
		for _, signal := range typing {
			names = append(names, signal.UserName)
		}
		fmt.Printf("%s typing…\n", strings.Join(names, ", "))
	}
}

// renderMessage is the message-bubble contract: structured plan payloads get
// dedicated rendering, anything unrecognized falls back to plain text.
func renderMessage(message models.ChatMessage, selfID string) string {
	prefix := message.SenderName
	if message.SenderID == selfID {
		prefix = "me"
	}
	read := ""
	if message.IsRead && message.SenderID == selfID {
		read = " ✓✓"
	}

	switch message.Kind() {
	case models.KindExercisePlan:
		plan := message.ExercisePlan
		return fmt.Sprintf("[%s] exercise plan: %s — %d×%d (%s)%s",
			prefix, plan.Name, plan.Sets, plan.Reps, plan.Category, read)
	case models.KindMealPlan:
		plan := message.MealPlan
		return fmt.Sprintf("[%s] meal plan: day %d %s, %d kcal, %d foods%s",
			prefix, plan.DayNumber, plan.MealType, plan.Calories, len(plan.Foods), read)
	default:
		return fmt.Sprintf("[%s] %s%s", prefix, message.Content, read)
	}
}
