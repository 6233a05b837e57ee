package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wall_rewriter/internal/storage"
)

type kvEntry struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

// KVStore implements storage.KV on the kv_entries table. Values must be
// JSON documents.
type KVStore struct {
	db *sqlx.DB
	tm *TransactionManager
}

func NewKVStore(db *sqlx.DB) *KVStore {
	return &KVStore{db: db, tm: NewTransactionManager(db)}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, "SELECT value FROM kv_entries WHERE key = $1", key)
}

func (s *KVStore) get(ctx context.Context, query, key string) ([]byte, error) {
	var value []byte
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *KVStore) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	var entries []kvEntry
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entries,
		"SELECT key, value FROM kv_entries WHERE key = ANY($1)", pq.Array(keys),
	)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		result[e.Key] = e.Value
	}
	return result, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`

	// jsonb does not accept bytea parameters, so send text.
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, key, string(value))
	return err
}

func (s *KVStore) Update(ctx context.Context, key string, fn storage.UpdateFunc) error {
	return s.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		// row locks miss keys that do not exist yet; the advisory lock covers them
		if _, err := GetExecutor(txCtx, s.db).ExecContext(txCtx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return err
		}

		current, err := s.get(txCtx, "SELECT value FROM kv_entries WHERE key = $1 FOR UPDATE", key)
		exists := true
		if errors.Is(err, storage.ErrNotFound) {
			exists = false
		} else if err != nil {
			return err
		}

		next, err := fn(current, exists)
		if err != nil {
			return err
		}
		return s.Put(txCtx, key, next)
	})
}

func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &keys,
		"SELECT key FROM kv_entries WHERE starts_with(key, $1) ORDER BY key", prefix,
	)
	return keys, err
}

func (s *KVStore) Close() error {
	return s.db.Close()
}
