// Package notify fans board change notifications out to stream subscribers.
package notify

import (
	"context"
	"sync"
)

// Publisher announces that a board changed and lets callers wait for changes.
type Publisher interface {
	Publish(ctx context.Context, boardID string) error
	Subscribe(ctx context.Context, boardID string) (<-chan struct{}, func())
}

// Hub delivers notifications to subscribers in the same process.
//
// Each subscriber owns a one-slot channel. Notifications that arrive while
// the slot is full are coalesced, so a slow subscriber sees at least one
// signal after the latest change but never blocks Publish.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewHub returns an empty Hub. The zero value is also ready to use.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Publish signals every subscriber of boardID.
func (h *Hub) Publish(ctx context.Context, boardID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[boardID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe registers for changes to boardID. The returned function
// unsubscribes and closes the channel; it is also called when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, boardID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[string]map[chan struct{}]struct{})
	}
	if h.subs[boardID] == nil {
		h.subs[boardID] = make(map[chan struct{}]struct{})
	}
	h.subs[boardID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(stop)
			h.mu.Lock()
			delete(h.subs[boardID], ch)
			if len(h.subs[boardID]) == 0 {
				delete(h.subs, boardID)
			}
			close(ch)
			h.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()

	return ch, cancel
}

// Subscribers returns the number of live subscriptions for boardID.
func (h *Hub) Subscribers(boardID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[boardID])
}
