package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Default provider endpoints.
const (
	PerplexityBaseURL = "https://api.perplexity.ai"
	OpenAIBaseURL     = "https://api.openai.com/v1"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 2048

// checkResp returns an error if the status is not 2xx, including the upstream
// body for debugging.
func checkResp(resp *http.Response, service string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s returned %d: %s", service, resp.StatusCode, string(body))
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a chat-style prompt.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a raw JSON object response.
	JSON bool
}

// Completion is a provider's text answer plus any citation URLs it returned.
type Completion struct {
	Text      string
	Citations []string
}

// Completer is anything that turns a chat prompt into a completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// ---------------------------------------------------------------------------
// ChatClient: OpenAI-compatible /chat/completions (Perplexity, OpenAI)
// ---------------------------------------------------------------------------

// ChatClient calls an OpenAI-compatible chat completions endpoint over HTTP.
type ChatClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewChatClient returns a client for the provider at baseURL. name is used in
// error messages only.
func NewChatClient(name, baseURL, apiKey string, httpClient *http.Client) *ChatClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ChatClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Complete calls POST /chat/completions.
func (c *ChatClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	var msgs []Message
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: req.User})

	payload := chatRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	resp, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return Completion{}, err
	}
	defer resp.Body.Close()

	if err := checkResp(resp, c.name); err != nil {
		return Completion{}, err
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Completion{}, fmt.Errorf("%s: decode: %w", c.name, err)
	}
	if len(result.Choices) == 0 {
		return Completion{}, fmt.Errorf("%s: response has no choices", c.name)
	}
	return Completion{
		Text:      result.Choices[0].Message.Content,
		Citations: result.Citations,
	}, nil
}

func (c *ChatClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, path, err)
	}
	return resp, nil
}
