package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
)

const maxMessagePage = 100

// Client calls the platform REST endpoints the chat session depends on.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var body struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := c.get(ctx, "/api/v1/conversations", nil, &body); err != nil {
		return nil, err
	}
	return body.Conversations, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string, skip, take int) ([]models.ChatMessage, error) {
	if take <= 0 || take > maxMessagePage {
		take = maxMessagePage
	}
	query := url.Values{}
	query.Set("skip", strconv.Itoa(skip))
	query.Set("take", strconv.Itoa(take))

	var body struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.get(ctx, path, query, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	path := "/api/v1/users/" + url.PathEscape(userID) + "/profile"
	if err := c.get(ctx, path, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) GetAdvisorProfile(ctx context.Context, advisorID string) (*models.AdvisorProfile, error) {
	var profile models.AdvisorProfile
	path := "/api/v1/advisors/" + url.PathEscape(advisorID) + "/profile"
	if err := c.get(ctx, path, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if query != nil {
		path = path + "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("api request failed: %s (status %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("api request failed with status %d", resp.StatusCode)
}
