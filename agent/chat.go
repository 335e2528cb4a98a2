package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChatGateway performs text generation via an OpenAI-compatible
// /chat/completions API. Credentials and model come from each invocation.
type ChatGateway struct {
	baseURL string
	client  *http.Client
}

// NewChatGateway creates a gateway against the given API base URL.
func NewChatGateway(baseURL string) *ChatGateway {
	return &ChatGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Close is a no-op (no subprocess to manage).
func (g *ChatGateway) Close() {}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Invoke sends a completion request to the API and returns the response text.
func (g *ChatGateway) Invoke(ctx context.Context, inv *Invocation) (string, error) {
	messages := []chatMessage{}
	if inv.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: inv.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: inv.User})

	reqBody := chatCompletionsRequest{
		Model:       inv.Model,
		Messages:    messages,
		MaxTokens:   inv.Config.MaxTokens,
		Temperature: inv.Config.Temperature,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if inv.Credentials != "" {
		httpReq.Header.Set("Authorization", "Bearer "+inv.Credentials)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result chatCompletionsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}

	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}
