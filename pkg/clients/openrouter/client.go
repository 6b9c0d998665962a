// Package openrouter generates short trade commentary through the OpenRouter
// chat-completions API. The client is optional; callers must tolerate a nil
// client and treat commentary failures as non-fatal.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseUrl = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"

	systemPrompt = `You are an expert in memecoin trading, you will be given a data of a memecoin token
Please give me your analytical thoughts on the token. Make it less than 3 sentences. Answer in a mood of a crypto degen bro but still insightful.`
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *zap.Logger
}

func NewClient(baseURL string, apiKey string, model string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseUrl
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		logger:  logger,
	}
}

// SetHttpClient overrides the underlying HTTP client, used in tests.
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GetCommentary returns a short analytical note for the given token data.
func (c *Client) GetCommentary(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(&chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/chat/completions", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	c.logger.Sugar().Debugw("Making commentary request", zap.String("model", c.model))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("commentary request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("failed to unmarshal chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("commentary response contained no choices")
	}
	return chat.Choices[0].Message.Content, nil
}
