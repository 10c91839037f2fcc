// Package client is a small Go SDK for the backend REST API, including the
// polling layer front-ends use to detect delayed assistant replies.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"studydesk/pkg/domain"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// Client talks to the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetToken sets the bearer token used for authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, name, email, password string) error {
	body := map[string]string{"name": name, "email": email, "password": password}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/auth/signup", body, nil)
}

// Login authenticates and remembers the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

// Profile fetches the caller's profile and quiz stats.
func (c *Client) Profile(ctx context.Context) (domain.Profile, error) {
	var profile domain.Profile
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/users/profile", nil, &profile)
	return profile, err
}

// ListPDFs returns the shared library of ready documents.
func (c *Client) ListPDFs(ctx context.Context) ([]domain.PDF, error) {
	var resp struct {
		PDFs []domain.PDF `json:"pdfs"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/pdfs", nil, &resp)
	return resp.PDFs, err
}

// CreateChat starts a chat over the given documents.
func (c *Client) CreateChat(ctx context.Context, pdfIDs []string, title string) (domain.Chat, error) {
	body := map[string]any{"pdfIds": pdfIDs, "title": title}
	var chat domain.Chat
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/chats", body, &chat)
	return chat, err
}

// ListChats returns the caller's chats, most recently active first.
func (c *Client) ListChats(ctx context.Context) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/chats", nil, &chats)
	return chats, err
}

// Messages returns the full transcript of a chat in chronological order.
func (c *Client) Messages(ctx context.Context, chatID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/chats/"+chatID+"/messages", nil, &messages)
	return messages, err
}

// ChatDetails returns the chat's documents and quiz history.
func (c *Client) ChatDetails(ctx context.Context, chatID string) (domain.ChatDetails, error) {
	var details domain.ChatDetails
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/chats/"+chatID+"/details", nil, &details)
	return details, err
}

// SendMessage posts a user message and returns the streamed plain-text
// reply. The caller must Close the reader. An empty or truncated stream is
// not an error here; use AwaitAssistantReply to confirm persistence.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (io.ReadCloser, error) {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chats/"+chatID+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	// No client timeout: the reply streams for as long as the model talks.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiErrorFromResponse(resp)
	}
	return resp.Body, nil
}

// GenerateQuiz requests a quiz for the chat. The response never includes
// ideal answers.
func (c *Client) GenerateQuiz(ctx context.Context, chatID string) (domain.ClientQuiz, error) {
	var quiz domain.ClientQuiz
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/quizzes/generate/"+chatID, nil, &quiz)
	return quiz, err
}

// SubmitQuiz submits answers for grading and returns the graded attempt.
func (c *Client) SubmitQuiz(ctx context.Context, quizID string, answers []domain.Answer) (domain.QuizAttempt, error) {
	body := map[string]any{"answers": answers}
	var attempt domain.QuizAttempt
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/quizzes/submit/"+quizID, body, &attempt)
	return attempt, err
}

// Attempts lists the caller's graded attempts for a chat.
func (c *Client) Attempts(ctx context.Context, chatID string) ([]domain.AttemptSummary, error) {
	var attempts []domain.AttemptSummary
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/quizzes/attempts/chat/"+chatID, nil, &attempts)
	return attempts, err
}

// AttemptDetails returns one graded attempt in full.
func (c *Client) AttemptDetails(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	var attempt domain.QuizAttempt
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/quizzes/attempts/"+attemptID, nil, &attempt)
	return attempt, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromResponse(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func apiErrorFromResponse(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
