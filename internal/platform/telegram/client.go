// Package telegram is a minimal Bot API client covering what the bot needs:
// long polling for updates, sending text and photos, and deleting messages.
package telegram

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
)

const apiBase = "https://api.telegram.org"

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Message mirrors the subset of the Bot API message object the bot reads.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
}

type User struct {
	ID int64 `json:"id"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// Update is one inbound event from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// response is the Bot API envelope.
type response struct {
	Ok          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type Option func(*Client)

// WithBaseURL overrides the API host, used by tests to point at a fake server.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 65 * time.Second},
		baseURL:    apiBase,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUpdates long-polls for updates after offset. timeout is in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{
		"offset":  {strconv.FormatInt(offset, 10)},
		"timeout": {strconv.Itoa(timeout)},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, fmt.Errorf("failed to get updates: %w", err)
	}
	return updates, nil
}

// SendMessage sends text to a chat and returns the sent message, whose id the
// caller may later pass to DeleteMessage.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	params := url.Values{
		"chat_id": {strconv.FormatInt(chatID, 10)},
		"text":    {text},
	}

	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return &msg, nil
}

// SendText sends a plain text message and returns only its id.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	msg, err := c.SendMessage(ctx, chatID, text)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendPhoto sends a photo by URL.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL string) error {
	params := url.Values{
		"chat_id": {strconv.FormatInt(chatID, 10)},
		"photo":   {photoURL},
	}

	if err := c.call(ctx, "sendPhoto", params, nil); err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	return nil
}

// DeleteMessage removes a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := url.Values{
		"chat_id":    {strconv.FormatInt(chatID, 10)},
		"message_id": {strconv.FormatInt(messageID, 10)},
	}

	if err := c.call(ctx, "deleteMessage", params, nil); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values, result interface{}) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !envelope.Ok {
		return fmt.Errorf("telegram API error: %s", envelope.Description)
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to parse result: %w", err)
		}
	}
	return nil
}
