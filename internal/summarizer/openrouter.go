package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultBaseURL is the OpenRouter chat-completions API.
// OpenRouter speaks the de-facto-standard OpenAI wire format, so pointing
// BaseURL at any compatible provider (or an httptest server) also works.
const defaultBaseURL = "https://openrouter.ai/api/v1"

// ClientConfig configures an OpenRouterClient. Zero-value fields get
// sensible defaults in NewOpenRouterClient.
type ClientConfig struct {
	APIKey     string
	Model      string        // e.g. "openai/gpt-4o-mini"
	BaseURL    string        // override for tests / compatible providers
	HTTPClient *http.Client  // override for tests
	Timeout    time.Duration // transport-level timeout, distinct from the per-call ctx deadline
}

// OpenRouterClient calls the chat-completions endpoint over plain HTTP.
//
// WHY NO VENDOR SDK?
// The wire format is a single JSON POST and one field of the response.
// A hand-written client keeps the dependency surface flat and makes the
// request/response shapes visible right here.
type OpenRouterClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// compile-time check that OpenRouterClient satisfies the transport interface
var _ Client = (*OpenRouterClient)(nil)

// NewOpenRouterClient creates a client for the configured model.
func NewOpenRouterClient(cfg ClientConfig) *OpenRouterClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &OpenRouterClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

// chatRequest / chatResponse mirror the OpenAI-compatible wire format.
// We only declare the fields we read or write — unknown response fields are
// ignored by encoding/json.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends the conversation and returns the assistant's reply text.
func (c *OpenRouterClient) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("summarizer: encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("summarizer: building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarizer: calling chat API: %w", err)
	}
	defer resp.Body.Close()

	// Bound the read: even an error body should never be unbounded.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("summarizer: reading chat API response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarizer: chat API returned status %d: %s",
			resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("summarizer: decoding chat API response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("summarizer: chat API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("summarizer: chat API returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
