// Package chat owns the Telegram side of the system: a minimal Bot API
// client and the long-poll session that feeds inbound updates to the core.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client covering only the methods
// the system uses.
type Client struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient creates a client with sane defaults.
func NewClient(token string) *Client {
	return &Client{
		Token:   token,
		BaseURL: defaultBaseURL,
		Timeout: 60 * time.Second,
	}
}

// APIError wraps a non-ok Bot API response.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot api error: code=%d description=%s", e.Code, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// ChatRef identifies a chat in updates and requests.
type ChatRef struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

type ChatUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type Message struct {
	MessageID int       `json:"message_id"`
	From      *ChatUser `json:"from,omitempty"`
	Chat      ChatRef   `json:"chat"`
	Date      int64     `json:"date"`
	Text      string    `json:"text,omitempty"`
}

type ChatMember struct {
	Status string   `json:"status"`
	User   ChatUser `json:"user"`
}

type InviteLink struct {
	InviteLink string   `json:"invite_link"`
	Creator    ChatUser `json:"creator"`
}

// MemberUpdate reports the bot's own membership change in a chat.
type MemberUpdate struct {
	Chat          ChatRef     `json:"chat"`
	From          ChatUser    `json:"from"`
	OldChatMember ChatMember  `json:"old_chat_member"`
	NewChatMember ChatMember  `json:"new_chat_member"`
	InviteLink    *InviteLink `json:"invite_link,omitempty"`
}

type Update struct {
	UpdateID     int64         `json:"update_id"`
	Message      *Message      `json:"message,omitempty"`
	MyChatMember *MemberUpdate `json:"my_chat_member,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", base, c.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := c.HTTPClient
	if client == nil {
		timeout := c.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("%s: invalid response: %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message", "my_chat_member"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// DeleteWebhook clears any configured webhook so long polling works.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{}, nil)
}

// SendMessage posts text to a chat, optionally as a reply.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (Message, error) {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if replyTo != 0 {
		params["reply_parameters"] = map[string]any{"message_id": replyTo}
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// SetMessageReaction puts an emoji reaction on a message. Chats can
// restrict reactions, in which case the API rejects the call.
func (c *Client) SetMessageReaction(ctx context.Context, chatID int64, messageID int, emoji string) error {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"reaction":   []map[string]any{{"type": "emoji", "emoji": emoji}},
	}
	return c.call(ctx, "setMessageReaction", params, nil)
}

// CreateInviteLink mints a fresh invite link; requires admin rights.
func (c *Client) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	var link InviteLink
	if err := c.call(ctx, "createChatInviteLink", map[string]any{"chat_id": chatID}, &link); err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// ExportInviteLink returns the chat's current primary invite link.
func (c *Client) ExportInviteLink(ctx context.Context, chatID int64) (string, error) {
	var link string
	if err := c.call(ctx, "exportChatInviteLink", map[string]any{"chat_id": chatID}, &link); err != nil {
		return "", err
	}
	return link, nil
}

// React implements the dispatcher's acknowledgment contract.
func (c *Client) React(ctx context.Context, chatID int64, messageID int, emoji string) error {
	return c.SetMessageReaction(ctx, chatID, messageID, emoji)
}

// Reply implements the dispatcher's acknowledgment fallback.
func (c *Client) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	_, err := c.SendMessage(ctx, chatID, text, replyTo)
	return err
}
