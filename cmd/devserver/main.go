package main

import (
	"log"

	"github.com/phamnguyen1700/fit-ai-chat/internal/config"
	"github.com/phamnguyen1700/fit-ai-chat/internal/devserver"
	"github.com/phamnguyen1700/fit-ai-chat/pkg/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	server := devserver.New(cfg.JWTSecret)
	seed(server, cfg.JWTSecret)

	log.Printf("Dev server starting on port %s", cfg.Port)
	if err := server.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// seed loads a demo advisor, two users, and a conversation each, then prints
// ready-to-use tokens.
func seed(server *devserver.Server, secret string) {
	advisor := devserver.User{
		ID:        "advisor-1",
		FirstName: "Minh",
		LastName:  "Pham",
		Email:     "minh@fit-ai.local",
		Role:      "advisor",
	}
	alice := devserver.User{
		ID:        "user-1",
		FirstName: "Alice",
		LastName:  "Tran",
		Username:  "alice",
		Email:     "alice@fit-ai.local",
		Role:      "user",
	}
	bob := devserver.User{
		ID:       "user-2",
		Username: "bob",
		Email:    "bob@fit-ai.local",
		Role:     "user",
	}

	server.Store.AddUser(advisor)
	server.Store.AddUser(alice)
	server.Store.AddUser(bob)
	server.Store.AddConversation(alice.ID, advisor.ID)
	server.Store.AddConversation(bob.ID, advisor.ID)

	for _, account := range []devserver.User{advisor, alice, bob} {
		token, err := utils.GenerateToken(account.ID, account.Role, secret)
		if err != nil {
			log.Fatalf("Failed to generate token: %v", err)
		}
		log.Printf("token for %s (%s): %s", account.ID, account.Role, token)
	}
}
