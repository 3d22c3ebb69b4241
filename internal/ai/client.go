package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	requestTimeout = 10 * time.Second
)

// ErrNoAPIKey is returned when a completion is requested without a configured
// credential. Callers treat it like any other completion failure and take
// their fallback path.
var ErrNoAPIKey = errors.New("ai: api key not configured")

// Client is a minimal chat-completions client for the Groq OpenAI-compatible
// API. All requests ask for a json_object response and return the raw message
// content; callers own schema validation and fallback behavior.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Ready reports whether a credential is configured. When false the service
// runs fallback-only; this is checked once at startup for the warning log and
// again per call.
func (c *Client) Ready() bool { return c.apiKey != "" }

type CompletionParams struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat respFormat    `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteJSON performs one blocking chat completion and returns the model's
// message content, which must itself be a JSON object. Never call this while
// holding a database transaction open.
func (c *Client) CompleteJSON(ctx context.Context, p CompletionParams) (json.RawMessage, error) {
	if !c.Ready() {
		return nil, ErrNoAPIKey
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		MaxTokens:      p.MaxTokens,
		Temperature:    p.Temperature,
		ResponseFormat: respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion service returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("completion response has no choices")
	}

	content := []byte(out.Choices[0].Message.Content)
	if !json.Valid(content) {
		return nil, errors.New("completion content is not valid JSON")
	}
	return json.RawMessage(content), nil
}
