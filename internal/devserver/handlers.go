package devserver

import (
	"errors"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
	"github.com/phamnguyen1700/fit-ai-chat/internal/realtime"
	"github.com/phamnguyen1700/fit-ai-chat/pkg/utils"
)

const maxMessagePage = 100

type Handler struct {
	store     *Store
	hub       *Hub
	jwtSecret string
}

func NewHandler(store *Store, hub *Hub, jwtSecret string) *Handler {
	return &Handler{
		store:     store,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

func (h *Handler) AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing authorization header",
		})
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid authorization header format",
		})
	}

	claims, err := utils.ValidateToken(parts[1], h.jwtSecret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *Handler) ListConversations(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	return c.JSON(fiber.Map{"conversations": h.store.ListSummaries(userID)})
}

func (h *Handler) GetMessages(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	conversationID := c.Params("id")
	if !h.store.IsParticipant(conversationID, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	skip := parseNonNegativeInt(c.Query("skip"), 0)
	take := parseNonNegativeInt(c.Query("take"), maxMessagePage)
	if take > maxMessagePage {
		take = maxMessagePage
	}

	messages, err := h.store.ListMessages(conversationID, skip, take)
	if err != nil {
		return mapStoreError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *Handler) MarkConversationRead(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	conversationID := c.Params("id")

	changed, err := h.store.MarkRead(conversationID, userID)
	if err != nil {
		return mapStoreError(c, err)
	}

	// The counterpart learns about the receipt over the push channel.
	if changed > 0 {
		if participants, err := h.store.Participants(conversationID); err == nil {
			frame := realtime.ServerFrame{Type: realtime.FrameMessagesRead, ConversationID: conversationID}
			for _, participant := range participants {
				if participant != userID {
					h.hub.Deliver(frame, participant)
				}
			}
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) GetUserProfile(c *fiber.Ctx) error {
	user, err := h.store.GetUser(c.Params("id"))
	if err != nil {
		return mapStoreError(c, err)
	}

	return c.JSON(models.UserProfile{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		Email:     user.Email,
	})
}

func (h *Handler) GetAdvisorProfile(c *fiber.Ctx) error {
	user, err := h.store.GetUser(c.Params("id"))
	if err != nil || user.Role != models.RoleAdvisor {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Advisor not found"})
	}

	return c.JSON(models.AdvisorProfile{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	})
}

// WebSocketAuth validates the upgrade request. The token arrives as a query
// parameter or an Authorization header.
func (h *Handler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}
	if tokenString == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
	}

	claims, err := utils.ValidateToken(tokenString, h.jwtSecret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *Handler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := NewClient(h.hub, conn, userID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump()
}

func mapStoreError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, ErrNotParticipant):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process request"})
	}
}

func parseNonNegativeInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
