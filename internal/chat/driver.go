package chat

import "context"

// Message is one normalized chat message from a group window.
type Message struct {
	Timestamp int64  `json:"timestamp"`
	User      string `json:"user"`
	Text      string `json:"text"`
}

// EventKind discriminates driver events.
type EventKind string

const (
	// EventPairing carries a scannable pairing token (QR payload).
	EventPairing EventKind = "pairing"
	// EventAuthenticated fires once credentials are accepted, before
	// the session is fully usable.
	EventAuthenticated EventKind = "authenticated"
	// EventReady fires when the session is usable.
	EventReady EventKind = "ready"
	// EventDisconnected fires when the session drops.
	EventDisconnected EventKind = "disconnected"
	// EventCommand carries an inbound bot command from a group.
	EventCommand EventKind = "command"
)

// Event is one driver notification.
type Event struct {
	Kind    EventKind `json:"kind"`
	Token   string    `json:"token,omitempty"`  // pairing token, EventPairing only
	Reason  string    `json:"reason,omitempty"` // EventDisconnected only
	Command *Command  `json:"command,omitempty"`
}

// Command is an inbound bot command matched in a group.
type Command struct {
	OriginID  string `json:"origin_id"` // message to reply to
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	Prompt    string `json:"prompt"`
	Search    bool   `json:"search"` // search-variant command
}

// Driver is the chat-session collaborator surface the backend
// consumes. Implementations must keep Events open until Stop.
type Driver interface {
	// Start begins a session cycle; pairing or authentication events
	// follow on the event stream.
	Start(ctx context.Context) error
	// Stop tears the session down. Already-issued calls are left to
	// complete or fail on their own.
	Stop(ctx context.Context) error
	// Events returns the driver notification stream.
	Events() <-chan Event
	// FetchRecentMessages returns up to limit most-recent messages for
	// a chat, oldest first.
	FetchRecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
	// ResolveDisplayName maps a raw user identifier to a display name.
	ResolveDisplayName(ctx context.Context, userID string) (string, error)
	// Reply sends text in response to the given origin message.
	Reply(ctx context.Context, originID string, text string) error
}
