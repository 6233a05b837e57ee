package storage

import (
	"context"
	"strconv"

	"wall_rewriter/internal/domain"
)

const cursorPrefix = "cursor_"

// CursorStore keeps the per-source pagination state.
type CursorStore struct {
	kv KV
}

func NewCursorStore(kv KV) *CursorStore {
	return &CursorStore{kv: kv}
}

func cursorKey(sourceID int64) string {
	return cursorPrefix + strconv.FormatInt(sourceID, 10)
}

// Get returns nil without error for a source that was never swept.
func (s *CursorStore) Get(ctx context.Context, sourceID int64) (*domain.CursorState, error) {
	var state domain.CursorState
	found, err := getJSON(ctx, s.kv, cursorKey(sourceID), &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

func (s *CursorStore) Put(ctx context.Context, sourceID int64, state domain.CursorState) error {
	return putJSON(ctx, s.kv, cursorKey(sourceID), state)
}
