package service

import (
	"context"
	"sync"

	"wall_rewriter/internal/domain"
)

// recordingObserver keeps every event it receives, in order.
type recordingObserver struct {
	mu        sync.Mutex
	detected  []domain.Post
	processed []domain.Post
	errors    []*domain.Error
}

func (r *recordingObserver) NewPostDetected(_ context.Context, post domain.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected = append(r.detected, post)
}

func (r *recordingObserver) PostProcessed(_ context.Context, post domain.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, post)
}

func (r *recordingObserver) Error(_ context.Context, err *domain.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingObserver) codes() []domain.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]domain.Code, len(r.errors))
	for i, e := range r.errors {
		codes[i] = e.Code
	}
	return codes
}
