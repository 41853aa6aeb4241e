// Package notify delivers in-process change notifications to UI
// collaborators. The ingestion loop publishes an event after each committed
// write; subscribers re-run their store queries on receipt, giving the usual
// eventually consistent read-after-ingest view.
package notify

import "sync"

// Kind identifies what changed.
type Kind string

const (
	KindChatUpdated     Kind = "chat_updated"
	KindMessageUpserted Kind = "message_upserted"
	KindMessageEdited   Kind = "message_edited"
	KindFileResolved    Kind = "file_resolved"
	KindAvatarResolved  Kind = "avatar_resolved"
)

// Event describes a single committed change. ChatID is always set;
// MessageID and UserID only when relevant for the kind.
type Event struct {
	Kind      Kind
	ChatID    int64
	MessageID int64
	UserID    int64
}

// Hub fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event and is expected to refresh on the
// next one.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given channel buffer size and
// returns the receive channel plus an unsubscribe function. Unsubscribing
// closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}

	h.mu.Lock()
	id := h.next
	h.next++
	ch := make(chan Event, buffer)
	h.subs[id] = ch
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers the event to every subscriber that has buffer capacity.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// Subscriber is behind; it will catch up from the store.
		}
	}
}
