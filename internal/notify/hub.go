// Package notify fans pipeline events out to subscribers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"wall_rewriter/internal/domain"
)

// Observer receives pipeline events.
type Observer interface {
	NewPostDetected(ctx context.Context, post domain.Post)
	PostProcessed(ctx context.Context, post domain.Post)
	Error(ctx context.Context, err *domain.Error)
}

// Hub delivers every event to all current subscribers, synchronously and
// in emission order. A panicking subscriber is logged and skipped.
type Hub struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]Observer
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "notify"),
		subs:   make(map[int]Observer),
	}
}

// Subscribe registers o and returns a function that removes it.
func (h *Hub) Subscribe(o Observer) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.subs[id] = o

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
		})
	}
}

func (h *Hub) NewPostDetected(ctx context.Context, post domain.Post) {
	h.each("new_post_detected", func(o Observer) { o.NewPostDetected(ctx, post) })
}

func (h *Hub) PostProcessed(ctx context.Context, post domain.Post) {
	h.each("post_processed", func(o Observer) { o.PostProcessed(ctx, post) })
}

func (h *Hub) Error(ctx context.Context, err *domain.Error) {
	h.each("error", func(o Observer) { o.Error(ctx, err) })
}

func (h *Hub) each(event string, fn func(Observer)) {
	for _, o := range h.snapshot() {
		h.deliver(event, o, fn)
	}
}

// snapshot returns subscribers in subscription order.
func (h *Hub) snapshot() []Observer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make([]Observer, 0, len(h.subs))
	for id := 0; id < h.nextID; id++ {
		if o, ok := h.subs[id]; ok {
			subs = append(subs, o)
		}
	}
	return subs
}

func (h *Hub) deliver(event string, o Observer, fn func(Observer)) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber panicked",
				"event", event,
				"subscriber", fmt.Sprintf("%T", o),
				"panic", r,
			)
		}
	}()
	fn(o)
}
