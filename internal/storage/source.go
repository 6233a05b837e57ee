package storage

import (
	"context"
	"strconv"

	"wall_rewriter/internal/domain"
)

const sourcePrefix = "source_"

// SourceStore persists source display metadata.
type SourceStore struct {
	kv KV
}

func NewSourceStore(kv KV) *SourceStore {
	return &SourceStore{kv: kv}
}

func sourceKey(id int64) string {
	return sourcePrefix + strconv.FormatInt(id, 10)
}

func (s *SourceStore) Get(ctx context.Context, id int64) (*domain.Source, error) {
	var src domain.Source
	found, err := getJSON(ctx, s.kv, sourceKey(id), &src)
	if err != nil || !found {
		return nil, err
	}
	return &src, nil
}

func (s *SourceStore) Put(ctx context.Context, src domain.Source) error {
	return putJSON(ctx, s.kv, sourceKey(src.ID), src)
}
