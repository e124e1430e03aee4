package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// ClaudeConfig configures the Anthropic Messages API client.
type ClaudeConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	RetryCount  int
	RetryDelay  time.Duration
	// BaseURL overrides the API endpoint, mainly for tests and proxies.
	BaseURL string
}

// ClaudeClient implements Synthesizer against the Anthropic Messages API.
type ClaudeClient struct {
	config     ClaudeConfig
	httpClient *http.Client
}

// NewClaudeClient creates a Claude synthesis client with defaults filled in.
func NewClaudeClient(config ClaudeConfig) *ClaudeClient {
	if config.Model == "" {
		config.Model = "claude-3-5-sonnet-20241022"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = anthropicAPIURL
	}

	return &ClaudeClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type claudeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize sends the prompt to Claude and returns the response text.
func (c *ClaudeClient) Synthesize(ctx context.Context, req Request) (string, error) {
	// Claude takes the system prompt out of band.
	var system string
	var apiMessages []claudeMessage
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = msg.Content
			continue
		}
		apiMessages = append(apiMessages, claudeMessage{Role: msg.Role, Content: msg.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}

	body, err := json.Marshal(claudeRequest{
		Model:       c.config.Model,
		Messages:    apiMessages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      system,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		text, retryable, err := c.send(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *ClaudeClient) send(ctx context.Context, body []byte) (text string, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.config.APIKey)
	httpReq.Header.Set("Anthropic-Version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr claudeError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			// 429 and 5xx are transient; everything else is a caller bug.
			transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			return "", transient, fmt.Errorf("api error %d (%s): %s",
				resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return "", resp.StatusCode >= 500, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to parse response: %w", err)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, false, nil
		}
	}
	return "", false, fmt.Errorf("response contained no text block")
}
