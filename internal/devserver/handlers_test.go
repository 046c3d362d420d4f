package devserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
	"github.com/phamnguyen1700/fit-ai-chat/pkg/utils"
)

const handlerSecret = "handler-test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	server := New(handlerSecret)
	server.Store.AddUser(User{ID: "advisor-1", FirstName: "Minh", LastName: "Pham", Role: "advisor"})
	server.Store.AddUser(User{ID: "user-1", FirstName: "Alice", LastName: "Tran", Username: "alice", Role: "user"})
	return server
}

func authedRequest(t *testing.T, method, target, userID, role string) *http.Request {
	t.Helper()
	token, err := utils.GenerateToken(userID, role, handlerSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthRequiredRejectsMissingHeader(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	resp, err := server.App.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthRequiredRejectsBadToken(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := server.App.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestListConversationsReturnsEnvelope(t *testing.T) {
	server := newTestServer(t)
	conversation := server.Store.AddConversation("user-1", "advisor-1")
	if _, err := server.Store.AppendMessage(conversation.ID, "user-1", "hello", "text"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := server.App.Test(authedRequest(t, http.MethodGet, "/api/v1/conversations", "advisor-1", "advisor"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Conversations) != 1 || body.Conversations[0].UnreadCount != 1 {
		t.Fatalf("unexpected body: %+v", body.Conversations)
	}
}

func TestGetMessagesForbiddenForOutsider(t *testing.T) {
	server := newTestServer(t)
	server.Store.AddUser(User{ID: "user-2", Role: "user"})
	conversation := server.Store.AddConversation("user-1", "advisor-1")

	target := "/api/v1/conversations/" + conversation.ID + "/messages"
	resp, err := server.App.Test(authedRequest(t, http.MethodGet, target, "user-2", "user"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestGetAdvisorProfileRejectsNonAdvisor(t *testing.T) {
	server := newTestServer(t)

	resp, err := server.App.Test(authedRequest(t, http.MethodGet, "/api/v1/advisors/user-1/profile", "advisor-1", "advisor"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for non-advisor id, got %d", resp.StatusCode)
	}
}

func TestGetUserProfileResolvesName(t *testing.T) {
	server := newTestServer(t)

	resp, err := server.App.Test(authedRequest(t, http.MethodGet, "/api/v1/users/user-1/profile", "advisor-1", "advisor"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var profile models.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.DisplayName() != "Alice Tran" {
		t.Errorf("DisplayName = %q", profile.DisplayName())
	}
}
