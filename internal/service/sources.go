package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"wall_rewriter/internal/domain"
)

// SourceCatalog resolves display metadata for the configured sources.
// Metadata is fetched once per source and persisted, so restarts read it
// back from storage instead of asking the feed again.
type SourceCatalog struct {
	feed     FeedClient
	store    SourceStore
	observer Observer
	ids      []int64
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[int64]domain.Source
}

func NewSourceCatalog(feed FeedClient, store SourceStore, observer Observer, ids []int64, logger *slog.Logger) *SourceCatalog {
	return &SourceCatalog{
		feed:     feed,
		store:    store,
		observer: observer,
		ids:      ids,
		logger:   logger.With("component", "catalog"),
		cache:    make(map[int64]domain.Source, len(ids)),
	}
}

// Refresh loads metadata for every configured source that has none yet.
func (c *SourceCatalog) Refresh(ctx context.Context) error {
	var missing []int64
	for _, id := range c.ids {
		if _, ok := c.cached(id); ok {
			continue
		}
		src, err := c.store.Get(ctx, id)
		if err != nil {
			coded := domain.AsError(err, domain.CodeStorage, "load source").WithSource(id)
			c.observer.Error(ctx, coded)
			return coded
		}
		if src != nil {
			c.remember(*src)
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return nil
	}

	sources, err := c.feed.ListSourceMetadata(ctx, missing)
	if err != nil {
		coded := domain.NewError(domain.CodeSourceMetadata, fmt.Sprintf("fetch metadata for %d sources", len(missing)), err)
		c.observer.Error(ctx, coded)
		return coded
	}

	for _, src := range sources {
		if err := c.store.Put(ctx, src); err != nil {
			c.observer.Error(ctx, domain.AsError(err, domain.CodeStorage, "save source").WithSource(src.ID))
		}
		c.remember(src)
	}

	c.logger.Info("source metadata loaded", "requested", len(missing), "received", len(sources))
	return nil
}

// List returns the configured sources with known metadata, in configuration order.
func (c *SourceCatalog) List(ctx context.Context) ([]domain.Source, error) {
	result := make([]domain.Source, 0, len(c.ids))
	for _, id := range c.ids {
		src, err := c.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		if src != nil {
			result = append(result, *src)
		}
	}
	return result, nil
}

func (c *SourceCatalog) Get(ctx context.Context, id int64) (domain.Source, error) {
	if !slices.Contains(c.ids, id) {
		return domain.Source{}, fmt.Errorf("source %d: %w", id, domain.ErrNotFound)
	}
	src, err := c.lookup(ctx, id)
	if err != nil {
		return domain.Source{}, err
	}
	if src == nil {
		return domain.Source{}, fmt.Errorf("source %d: %w", id, domain.ErrNotFound)
	}
	return *src, nil
}

func (c *SourceCatalog) lookup(ctx context.Context, id int64) (*domain.Source, error) {
	if src, ok := c.cached(id); ok {
		return &src, nil
	}
	src, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if src != nil {
		c.remember(*src)
	}
	return src, nil
}

func (c *SourceCatalog) cached(id int64) (domain.Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.cache[id]
	return src, ok
}

func (c *SourceCatalog) remember(src domain.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[src.ID] = src
}
