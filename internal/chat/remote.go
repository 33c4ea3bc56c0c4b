package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/logging"
)

// RemoteDriver drives the browser-automation sidecar over HTTP.
// Reads (message windows, contact names, event polling) go through a
// retrying client; writes are sent once, never retried, so a reply can
// not be duplicated. At most one poll loop feeds the events channel:
// restarting a session cycle replaces the previous poller, and the
// event cursor survives across cycles so no event is delivered twice.
type RemoteDriver struct {
	baseURL string
	read    *http.Client
	write   *http.Client
	events  chan Event
	logger  *logging.Logger

	mu       sync.Mutex
	cursor   string
	stopPoll context.CancelFunc
}

// NewRemoteDriver creates a driver for the sidecar at baseURL.
func NewRemoteDriver(baseURL string, callTimeout time.Duration, logger *logging.Logger) *RemoteDriver {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	return &RemoteDriver{
		baseURL: baseURL,
		read:    retryClient.StandardClient(),
		write:   &http.Client{Timeout: callTimeout},
		events:  make(chan Event, 16),
		logger:  logger,
	}
}

// Start begins a session cycle on the sidecar and starts the event
// poll loop, replacing the poller of any previous cycle.
func (d *RemoteDriver) Start(ctx context.Context) error {
	if err := d.post(ctx, "/session/start", nil, nil); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	d.mu.Lock()
	if d.stopPoll != nil {
		d.stopPoll()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	d.stopPoll = cancel
	d.mu.Unlock()

	go d.pollEvents(pollCtx)
	return nil
}

// Stop halts the event poller and tears the sidecar session down.
func (d *RemoteDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopPoll != nil {
		d.stopPoll()
		d.stopPoll = nil
	}
	d.mu.Unlock()

	if err := d.post(ctx, "/session/stop", nil, nil); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	return nil
}

// Events returns the driver notification stream.
func (d *RemoteDriver) Events() <-chan Event {
	return d.events
}

// FetchRecentMessages returns up to limit most-recent messages for a
// chat, oldest first.
func (d *RemoteDriver) FetchRecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	path := fmt.Sprintf("/chats/%s/messages?limit=%d", url.PathEscape(chatID), limit)
	if err := d.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", chatID, err)
	}
	return out.Messages, nil
}

// ResolveDisplayName maps a raw user identifier to a display name.
// Falls back to the raw ID when the sidecar has no contact entry.
func (d *RemoteDriver) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	if err := d.get(ctx, "/contacts/"+url.PathEscape(userID), &out); err != nil {
		return "", fmt.Errorf("resolve contact %s: %w", userID, err)
	}
	if out.Name == "" {
		return userID, nil
	}
	return out.Name, nil
}

// Reply sends text in response to the given origin message. Sent once,
// never retried.
func (d *RemoteDriver) Reply(ctx context.Context, originID string, text string) error {
	body := map[string]string{
		"origin_id": originID,
		"text":      text,
	}
	if err := d.post(ctx, "/messages/reply", body, nil); err != nil {
		return fmt.Errorf("reply to %s: %w", originID, err)
	}
	return nil
}

// pollEvents long-polls the sidecar event feed and fans events into
// the driver channel until the context ends. The cursor lives on the
// driver so a replacement poller resumes where the last one stopped.
func (d *RemoteDriver) pollEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.mu.Lock()
		cursor := d.cursor
		d.mu.Unlock()

		var out struct {
			Cursor string  `json:"cursor"`
			Events []Event `json:"events"`
		}
		path := "/events?wait=25s"
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		if err := d.get(ctx, path, &out); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("Event poll failed", zap.Error(err))
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		d.mu.Lock()
		d.cursor = out.Cursor
		d.mu.Unlock()

		for _, ev := range out.Events {
			select {
			case d.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *RemoteDriver) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := d.read.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sidecar returned %s", resp.Status)
	}
	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (d *RemoteDriver) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.write.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sidecar returned %s", resp.Status)
	}
	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
