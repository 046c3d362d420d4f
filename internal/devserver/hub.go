package devserver

import (
	"encoding/json"
	"log"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"golang.org/x/time/rate"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
	"github.com/phamnguyen1700/fit-ai-chat/internal/realtime"
)

// Abuse limits mirroring the production platform.
const (
	messagesPerMinute = 30
	typingPerMinute   = 60
)

type Hub struct {
	store      *Store
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
}

type delivery struct {
	payload []byte
	userIDs []string
}

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	userID     string
	send       chan []byte
	room       string
	messageLim *rate.Limiter
	typingLim  *rate.Limiter
}

func NewHub(store *Store) *Hub {
	return &Hub{
		store:      store,
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		userID:     userID,
		send:       make(chan []byte, 32),
		messageLim: rate.NewLimiter(rate.Every(time.Minute/messagesPerMinute), messagesPerMinute),
		typingLim:  rate.NewLimiter(rate.Every(time.Minute/typingPerMinute), typingPerMinute),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			h.store.SetPresence(client.userID, models.PresenceOnline)
			h.broadcast(realtime.ServerFrame{Type: realtime.FrameUserOnline, UserID: client.userID})
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
				h.store.SetPresence(client.userID, models.PresenceOffline)
				h.broadcast(realtime.ServerFrame{Type: realtime.FrameUserOffline, UserID: client.userID})
			}
		case d := <-h.deliver:
			for _, userID := range d.userIDs {
				h.sendToUser(userID, d.payload)
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Deliver queues a frame for every connection of the given users.
func (h *Hub) Deliver(frame realtime.ServerFrame, userIDs ...string) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("devserver: encode frame: %v", err)
		return
	}
	h.deliver <- delivery{payload: payload, userIDs: userIDs}
}

// broadcast pushes a frame to every connected user. Only called from Run.
func (h *Hub) broadcast(frame realtime.ServerFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("devserver: encode frame: %v", err)
		return
	}
	for userID := range h.clients {
		h.sendToUser(userID, payload)
	}
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// ReadPump consumes client frames until the connection drops. One reader per
// connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame realtime.ClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.writeError("invalid frame payload")
			continue
		}

		switch frame.Type {
		case realtime.FrameJoin:
			c.handleJoin(frame)
		case realtime.FrameLeave:
			c.handleLeave(frame)
		case realtime.FrameMessage:
			c.handleMessage(frame)
		case realtime.FrameTyping, realtime.FrameStopTyping:
			c.handleTyping(frame)
		case realtime.FrameMarkRead:
			c.handleMarkRead(frame)
		default:
			c.writeError("unsupported frame type")
		}
	}
}

func (c *Client) handleJoin(frame realtime.ClientFrame) {
	if !c.hub.store.IsParticipant(frame.ConversationID, c.userID) {
		c.ack(realtime.FrameJoin, frame.ConversationID, "not a conversation participant")
		return
	}
	c.room = frame.ConversationID
	c.ack(realtime.FrameJoin, frame.ConversationID, "")
}

func (c *Client) handleLeave(frame realtime.ClientFrame) {
	if c.room == frame.ConversationID {
		c.room = ""
	}
	c.ack(realtime.FrameLeave, frame.ConversationID, "")
}

func (c *Client) handleMessage(frame realtime.ClientFrame) {
	if !c.messageLim.Allow() {
		c.ack(realtime.FrameMessage, frame.ConversationID, "message rate limit exceeded")
		return
	}

	message, err := c.hub.store.AppendMessage(frame.ConversationID, c.userID, frame.Content, frame.MessageType)
	if err != nil {
		c.ack(realtime.FrameMessage, frame.ConversationID, "failed to send message")
		return
	}
	c.ack(realtime.FrameMessage, frame.ConversationID, "")

	participants, err := c.hub.store.Participants(frame.ConversationID)
	if err != nil {
		return
	}
	c.hub.Deliver(realtime.ServerFrame{Type: realtime.FrameMessage, Message: message}, participants...)
}

func (c *Client) handleTyping(frame realtime.ClientFrame) {
	if !c.typingLim.Allow() {
		return
	}
	if !c.hub.store.IsParticipant(frame.ConversationID, c.userID) {
		return
	}

	out := realtime.ServerFrame{
		Type:           frame.Type,
		ConversationID: frame.ConversationID,
		UserID:         c.userID,
	}
	if frame.Type == realtime.FrameTyping {
		if user, err := c.hub.store.GetUser(c.userID); err == nil {
			out.UserName = displayName(user)
		}
	}

	for _, participant := range c.counterparts(frame.ConversationID) {
		c.hub.Deliver(out, participant)
	}
}

func (c *Client) handleMarkRead(frame realtime.ClientFrame) {
	changed, err := c.hub.store.MarkRead(frame.ConversationID, c.userID)
	if err != nil {
		c.ack(realtime.FrameMarkRead, frame.ConversationID, "failed to mark conversation read")
		return
	}
	c.ack(realtime.FrameMarkRead, frame.ConversationID, "")

	if changed == 0 {
		return
	}
	out := realtime.ServerFrame{
		Type:           realtime.FrameMessagesRead,
		ConversationID: frame.ConversationID,
	}
	for _, participant := range c.counterparts(frame.ConversationID) {
		c.hub.Deliver(out, participant)
	}
}

func (c *Client) counterparts(conversationID string) []string {
	participants, err := c.hub.store.Participants(conversationID)
	if err != nil {
		return nil
	}
	others := make([]string, 0, len(participants))
	for _, participant := range participants {
		if participant != c.userID {
			others = append(others, participant)
		}
	}
	return others
}

func (c *Client) ack(op, conversationID, errMsg string) {
	frame := realtime.ServerFrame{
		Type:           realtime.FrameAck,
		Op:             op,
		ConversationID: conversationID,
		OK:             errMsg == "",
		Error:          errMsg,
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.Unregister(c)
	}
}

func (c *Client) writeError(message string) {
	payload, err := json.Marshal(realtime.ServerFrame{Type: realtime.FrameError, Error: message})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.Unregister(c)
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
