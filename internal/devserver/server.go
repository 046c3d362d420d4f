// Package devserver is an in-memory emulation of the platform backend: the
// REST endpoints and the realtime push channel the chat session consumes. It
// backs the e2e tests and local development; nothing here talks to a real
// database.
package devserver

import (
	"net"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Server bundles the fiber app with its backing store.
type Server struct {
	App   *fiber.App
	Store *Store
	hub   *Hub
}

func New(jwtSecret string) *Server {
	store := NewStore()
	hub := NewHub(store)
	go hub.Run()

	handler := NewHandler(store, hub, jwtSecret)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// The upgrade path authenticates via query token, so it is registered
	// ahead of the bearer-header group.
	api.Use("/ws", handler.WebSocketAuth)
	api.Get("/ws", websocket.New(handler.HandleWebSocket))

	protected := api.Group("", handler.AuthRequired)
	protected.Get("/conversations", handler.ListConversations)
	protected.Get("/conversations/:id/messages", handler.GetMessages)
	protected.Post("/conversations/:id/read", handler.MarkConversationRead)
	protected.Get("/users/:id/profile", handler.GetUserProfile)
	protected.Get("/advisors/:id/profile", handler.GetAdvisorProfile)

	return &Server{App: app, Store: store, hub: hub}
}

// Listen starts serving on the given address.
func (s *Server) Listen(addr string) error {
	return s.App.Listen(addr)
}

// Serve serves on an existing listener; tests use it with a random port.
func (s *Server) Serve(ln net.Listener) error {
	return s.App.Listener(ln)
}

// Shutdown stops the fiber app.
func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}
