// Package generation is the client for the downstream text-generation
// collaborator. It speaks the webhook's request/response contract and
// nothing else; admission, diffing, and retry policy live upstream.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fallback is returned when the collaborator responds without any
// recognized answer field.
const Fallback = "Sorry, I couldn't come up with a response this time."

// Message is one context message forwarded to the generator.
type Message struct {
	Timestamp int64  `json:"timestamp"`
	User      string `json:"user"`
	Message   string `json:"message"`
	GroupName string `json:"group_name"`
}

// CacheInfo tells the generator how much context is new versus cached.
type CacheInfo struct {
	TotalMessages    int  `json:"total_messages"`
	NewMessages      int  `json:"new_messages"`
	HasCachedContext bool `json:"has_cached_context"`
}

// Request is the generation call payload.
type Request struct {
	Messages  []Message `json:"messages"`
	Prompt    string    `json:"prompt"`
	GroupName string    `json:"group_name"`
	CacheInfo CacheInfo `json:"cache_info"`
}

// Client calls the generation webhook with a bounded timeout.
type Client struct {
	resty *resty.Client
	url   string
}

// New creates a generation client. The timeout bounds the whole call;
// there are no retries, each queued item is attempted exactly once.
func New(url string, timeout time.Duration) *Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "whatsapp-bot-dashboard/1.0").
		SetHeader("Content-Type", "application/json")

	return &Client{
		resty: client,
		url:   url,
	}
}

// Generate sends the request and returns the response text. The
// collaborator may answer under "response", "answer", or "text";
// they are honored in that priority order.
func (c *Client) Generate(ctx context.Context, req *Request) (string, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("generation call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("generation call: status %s", resp.Status())
	}

	var body struct {
		Response string `json:"response"`
		Answer   string `json:"answer"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("generation response: %w", err)
	}

	switch {
	case body.Response != "":
		return body.Response, nil
	case body.Answer != "":
		return body.Answer, nil
	case body.Text != "":
		return body.Text, nil
	default:
		return Fallback, nil
	}
}
