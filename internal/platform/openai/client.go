// Package openai is an HTTP adapter for the chat completions and image
// generation endpoints. The base URL and HTTP client are injectable so tests
// can run against a fake server.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ChatMessage is one turn in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(base, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(secretKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    defaultBaseURL,
		secretKey:  secretKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatCompletion sends the conversation to the model and returns the
// assistant message.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []ChatMessage) (*ChatMessage, error) {
	reqBody := struct {
		Model    string        `json:"model"`
		Messages []ChatMessage `json:"messages"`
	}{Model: model, Messages: messages}

	var result struct {
		Choices []struct {
			Message ChatMessage `json:"message"`
		} `json:"choices"`
	}

	if err := c.post(ctx, "/chat/completions", reqBody, &result); err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("openai: completion returned no choices")
	}
	return &result.Choices[0].Message, nil
}

// GenerateImage asks for n images of the given size and returns their URLs.
func (c *Client) GenerateImage(ctx context.Context, prompt string, n int, size string) ([]string, error) {
	reqBody := struct {
		Prompt string `json:"prompt"`
		N      int    `json:"n"`
		Size   string `json:"size"`
	}{Prompt: prompt, N: n, Size: size}

	var result struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}

	if err := c.post(ctx, "/images/generations", reqBody, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("openai: image generation returned no data")
	}

	urls := make([]string, 0, len(result.Data))
	for _, d := range result.Data {
		urls = append(urls, d.URL)
	}
	return urls, nil
}

func (c *Client) post(ctx context.Context, path string, payload, result interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("openai: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("openai: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai: sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("openai: %s (status %d)", apiErr.Error.Message, resp.StatusCode)
		}
		return fmt.Errorf("openai: unexpected status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("openai: parsing response: %w", err)
	}
	return nil
}
