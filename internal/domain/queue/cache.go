package queue

import (
	"sync"
	"time"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/chat"
)

// prefixRunes bounds the text component of the diff key. Long messages
// differ in their head in practice; the bound keeps keys cheap.
const prefixRunes = 50

// messageKey is the composite identity used for diffing. Two messages
// with the same timestamp, user, and text prefix are the same message.
type messageKey struct {
	timestamp int64
	user      string
	prefix    string
}

func keyOf(msg chat.Message) messageKey {
	text := msg.Text
	if runes := []rune(text); len(runes) > prefixRunes {
		text = string(runes[:prefixRunes])
	}
	return messageKey{
		timestamp: msg.Timestamp,
		user:      msg.User,
		prefix:    text,
	}
}

type groupEntry struct {
	keys     map[messageKey]struct{}
	ordered  []messageKey // insertion order, for replacement bookkeeping
	cachedAt time.Time
}

// GroupCache tracks, per group, the most recently seen message window
// so only unseen messages are forwarded downstream. It is a diff aid
// only, never the response source of truth.
type GroupCache struct {
	mu          sync.Mutex
	groups      map[string]*groupEntry
	maxMessages int
	maxGroups   int
}

// NewGroupCache creates a cache bounded to maxMessages entries per
// group and maxGroups tracked groups.
func NewGroupCache(maxMessages, maxGroups int) *GroupCache {
	return &GroupCache{
		groups:      make(map[string]*groupEntry),
		maxMessages: maxMessages,
		maxGroups:   maxGroups,
	}
}

// Diff returns the messages in window not present in the group's
// cache, preserving window order, and whether any cached context
// existed for the group. An uncached group yields the full window.
func (c *GroupCache) Diff(groupID string, window []chat.Message) ([]chat.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.groups[groupID]
	if !ok {
		fresh := make([]chat.Message, len(window))
		copy(fresh, window)
		return fresh, false
	}

	var fresh []chat.Message
	for _, msg := range window {
		if _, seen := entry.keys[keyOf(msg)]; !seen {
			fresh = append(fresh, msg)
		}
	}
	return fresh, true
}

// Update replaces the group's cache with the most recent maxMessages
// entries of window, regardless of how many were new. Called after
// every processing attempt so the cache always reflects the freshest
// tail.
func (c *GroupCache) Update(groupID string, window []chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tail := window
	if len(tail) > c.maxMessages {
		tail = tail[len(tail)-c.maxMessages:]
	}

	entry := &groupEntry{
		keys:     make(map[messageKey]struct{}, len(tail)),
		ordered:  make([]messageKey, 0, len(tail)),
		cachedAt: time.Now(),
	}
	for _, msg := range tail {
		key := keyOf(msg)
		if _, dup := entry.keys[key]; dup {
			continue
		}
		entry.keys[key] = struct{}{}
		entry.ordered = append(entry.ordered, key)
	}

	c.groups[groupID] = entry
	c.evictLocked()
}

// Size returns the number of cached messages for a group.
func (c *GroupCache) Size(groupID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.groups[groupID]
	if !ok {
		return 0
	}
	return len(entry.ordered)
}

// evictLocked drops least-recently-cached groups past the bound.
func (c *GroupCache) evictLocked() {
	for len(c.groups) > c.maxGroups {
		oldestID := ""
		var oldestAt time.Time
		for groupID, entry := range c.groups {
			if oldestID == "" || entry.cachedAt.Before(oldestAt) {
				oldestID = groupID
				oldestAt = entry.cachedAt
			}
		}
		delete(c.groups, oldestID)
	}
}
