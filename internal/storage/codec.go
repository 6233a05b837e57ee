package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wall_rewriter/internal/domain"
)

func storageError(op, key string, err error) *domain.Error {
	return domain.NewError(domain.CodeStorage, fmt.Sprintf("%s %s", op, key), err)
}

// getJSON decodes the value under key into v. It reports false when the
// key is absent.
func getJSON(ctx context.Context, kv KV, key string, v any) (bool, error) {
	data, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageError("get", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, storageError("decode", key, err)
	}
	return true, nil
}

func putJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return storageError("encode", key, err)
	}
	if err := kv.Put(ctx, key, data); err != nil {
		return storageError("put", key, err)
	}
	return nil
}
