package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"

	"wall_rewriter/internal/domain"
)

const (
	postPrefix = "post_"
	batchSize  = 100
)

// PostStore is the ledger of seen posts and their rewritten variants.
type PostStore struct {
	kv KV
}

func NewPostStore(kv KV) *PostStore {
	return &PostStore{kv: kv}
}

func postKey(id int64) string {
	return postPrefix + strconv.FormatInt(id, 10)
}

// Get returns nil without error when the post was never stored.
func (s *PostStore) Get(ctx context.Context, id int64) (*domain.Post, error) {
	var post domain.Post
	found, err := getJSON(ctx, s.kv, postKey(id), &post)
	if err != nil || !found {
		return nil, err
	}
	post.ID = id
	return &post, nil
}

func (s *PostStore) Put(ctx context.Context, post domain.Post) error {
	return putJSON(ctx, s.kv, postKey(post.ID), post)
}

// AppendVariant atomically appends variant to the stored record of post.
// When no record exists yet, post (without its variants) seeds it.
func (s *PostStore) AppendVariant(ctx context.Context, post domain.Post, variant string) (domain.Post, error) {
	key := postKey(post.ID)
	var updated domain.Post

	err := s.kv.Update(ctx, key, func(current []byte, exists bool) ([]byte, error) {
		updated = post
		updated.Variants = nil
		if exists {
			if err := json.Unmarshal(current, &updated); err != nil {
				return nil, fmt.Errorf("decode: %w", err)
			}
			updated.ID = post.ID
		}
		updated.Variants = append(updated.Variants, variant)
		return json.Marshal(updated)
	})
	if err != nil {
		return domain.Post{}, storageError("append variant", key, err)
	}
	return updated, nil
}

// All yields every stored post. Values are loaded lazily in batches, and
// each iteration lists the keys again, so the sequence can be ranged over
// more than once.
func (s *PostStore) All(ctx context.Context) iter.Seq2[domain.Post, error] {
	return func(yield func(domain.Post, error) bool) {
		keys, err := s.kv.Keys(ctx, postPrefix)
		if err != nil {
			yield(domain.Post{}, storageError("list", postPrefix, err))
			return
		}

		for start := 0; start < len(keys); start += batchSize {
			batch := keys[start:min(start+batchSize, len(keys))]

			values, err := s.kv.GetMany(ctx, batch)
			if err != nil {
				yield(domain.Post{}, storageError("get", postPrefix+"*", err))
				return
			}

			for _, key := range batch {
				data, ok := values[key]
				if !ok {
					continue
				}
				var post domain.Post
				if err := json.Unmarshal(data, &post); err != nil {
					if !yield(domain.Post{}, storageError("decode", key, err)) {
						return
					}
					continue
				}
				if !yield(post, nil) {
					return
				}
			}
		}
	}
}
