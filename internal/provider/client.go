package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const snippetLength = 200

type Client struct {
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// Query issues exactly one chat-completions call against the endpoint and
// normalizes the outcome into a Result. It never returns an error for
// provider-side failure; the failed variant carries an error-flavored
// content string instead. ResponseTimeMs is wall-clock from call start to
// full body receipt, so it stays meaningful even on failure. No retries
// happen at this layer.
func (c *Client) Query(ctx context.Context, ep Endpoint, prompt string) Result {
	start := time.Now()

	content, err := c.complete(ctx, ep, prompt)
	elapsed := int(time.Since(start).Milliseconds())

	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"provider":         ep.ID,
			"response_time_ms": elapsed,
		}).WithError(err).Warn("Provider call failed")

		return Result{
			ModelID:        ep.ID,
			OK:             false,
			Content:        fmt.Sprintf("Error getting response from %s: %v", ep.DisplayName, err),
			Title:          ep.DisplayName,
			ResponseTimeMs: elapsed,
		}
	}

	c.logger.WithFields(logrus.Fields{
		"provider":         ep.ID,
		"response_time_ms": elapsed,
		"content_length":   len(content),
	}).Debug("Provider call completed")

	return Result{
		ModelID:        ep.ID,
		OK:             true,
		Content:        content,
		Title:          ep.DisplayName,
		Snippet:        makeSnippet(content),
		ResponseTimeMs: elapsed,
	}
}

func (c *Client) complete(ctx context.Context, ep Endpoint, prompt string) (string, error) {
	url := strings.TrimRight(ep.BaseURL, "/") + "/v1/chat/completions"

	payload := chatRequest{
		Model: ep.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.httpClient
	if ep.Timeout > 0 {
		clone := *c.httpClient
		clone.Timeout = ep.Timeout
		httpClient = &clone
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(string(responseBody), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("provider error: %s", parsed.Error.Message)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("provider returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

func makeSnippet(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= snippetLength {
		return content
	}
	return strings.TrimSpace(content[:snippetLength]) + "..."
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
