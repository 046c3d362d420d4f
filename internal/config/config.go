package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL string
	WSURL      string
	Token      string
	TokenFile  string
	JWTSecret  string
	Port       string
	AppEnv     string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	return &Config{
		APIBaseURL: getEnv("CHAT_API_BASE_URL", "http://localhost:8080"),
		WSURL:      getEnv("CHAT_WS_URL", "ws://localhost:8080/api/v1/ws"),
		Token:      getEnv("CHAT_TOKEN", ""),
		TokenFile:  getEnv("CHAT_TOKEN_FILE", ""),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		Port:       getEnv("PORT", "8080"),
		AppEnv:     normalizeEnv(getEnv("APP_ENV", "production")),
	}, nil
}

// BearerToken retrieves the session token from local persistent storage: the
// environment first, then the configured token file. An empty result means no
// authenticated session exists and no connection should be attempted.
func (c *Config) BearerToken() string {
	if c.Token != "" {
		return c.Token
	}
	if c.TokenFile == "" {
		return ""
	}
	raw, err := os.ReadFile(c.TokenFile)
	if err != nil {
		log.Printf("Failed to read token file: %v", err)
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
