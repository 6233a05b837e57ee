package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wall_rewriter/internal/domain"
)

type EngineConfig struct {
	SourceIDs []int64
	PageSize  int
	// Lookback is how far back the first sweep of a source reaches.
	Lookback time.Duration
}

type routeOutcome int

const (
	outcomeSkipped routeOutcome = iota
	outcomeProcessed
	outcomeFailed
)

// Engine walks source walls from the newest post back to the stored
// watermark and hands every unseen post to the rewriter.
type Engine struct {
	feed     FeedClient
	cursors  CursorStore
	posts    PostStore
	rewriter Rewriter
	catalog  SourceRefresher
	observer Observer
	config   EngineConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(
	feed FeedClient,
	cursors CursorStore,
	posts PostStore,
	rewriter Rewriter,
	catalog SourceRefresher,
	observer Observer,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		feed:     feed,
		cursors:  cursors,
		posts:    posts,
		rewriter: rewriter,
		catalog:  catalog,
		observer: observer,
		config:   cfg,
		logger:   logger.With("component", "engine"),
		now:      time.Now,
	}
}

// Sync runs one cycle: a sweep of every configured source, in order.
// Source metadata still missing from the catalog is fetched first.
func (e *Engine) Sync(ctx context.Context) (*domain.CycleStats, error) {
	start := time.Now()
	stats := &domain.CycleStats{}

	if e.catalog != nil {
		if err := e.catalog.Refresh(ctx); err != nil {
			e.logger.Debug("source metadata refresh failed", "error", err)
		}
	}

	for _, sourceID := range e.config.SourceIDs {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("cycle interrupted before source %d: %w", sourceID, err)
		}
		stats.Sweeps = append(stats.Sweeps, e.Sweep(ctx, sourceID))
	}

	stats.Duration = time.Since(start)
	e.logger.Info("cycle completed",
		"sources", len(stats.Sweeps),
		"processed", stats.Processed(),
		"failed", stats.Failed(),
		"duration", stats.Duration,
	)
	return stats, nil
}

// Sweep paginates one source until it reaches a post at or below the
// watermark or runs out of posts. Progress is committed after every page,
// so a sweep aborted by a fetch error resumes where it stopped.
func (e *Engine) Sweep(ctx context.Context, sourceID int64) domain.SweepStats {
	start := time.Now()
	stats := domain.SweepStats{SourceID: sourceID}
	logger := e.logger.With("source_id", sourceID)

	cursor, err := e.cursors.Get(ctx, sourceID)
	if err != nil {
		e.emitError(ctx, domain.AsError(err, domain.CodeStorage, "load cursor").WithSource(sourceID))
		stats.Aborted = true
		return stats
	}
	if cursor == nil {
		cursor = &domain.CursorState{WatermarkDate: e.now().Add(-e.config.Lookback).Unix()}
		logger.Info("source never swept, starting from lookback", "watermark", cursor.WatermarkDate)
	}

	boundary := cursor.WatermarkDate
	maxSeen := max(boundary, cursor.PendingDate)
	offset := cursor.PageOffset
	oldestFailed := cursor.RetryDate

	logger.Debug("sweep started", "watermark", boundary, "offset", offset)

pages:
	for {
		page, err := e.feed.ListPosts(ctx, sourceID, offset, e.config.PageSize)
		if err != nil {
			e.emitError(ctx, domain.NewError(domain.CodeFeedFetch, "fetch page", err).WithSource(sourceID))
			e.saveCursor(ctx, sourceID, progress(boundary, offset, maxSeen, oldestFailed))
			stats.Watermark = boundary
			stats.Aborted = true
			stats.Duration = time.Since(start)
			logger.Warn("sweep aborted", "offset", offset, "error", err)
			return stats
		}
		stats.Pages++
		stats.Fetched += len(page)
		if len(page) == 0 {
			break
		}

		for _, post := range page {
			if post.Date <= boundary {
				if post.Pinned {
					continue
				}
				break pages
			}
			maxSeen = max(maxSeen, post.Date)

			switch e.route(ctx, sourceID, post, &stats) {
			case outcomeProcessed:
				stats.Processed++
			case outcomeFailed:
				stats.Failed++
				if oldestFailed == 0 || post.Date < oldestFailed {
					oldestFailed = post.Date
				}
			default:
				stats.Skipped++
			}
		}

		offset += e.config.PageSize
		if len(page) < e.config.PageSize {
			break
		}
		if !e.saveCursor(ctx, sourceID, progress(boundary, offset, maxSeen, oldestFailed)) {
			stats.Watermark = boundary
			stats.Aborted = true
			stats.Duration = time.Since(start)
			return stats
		}
	}

	watermark := max(boundary, maxSeen)
	if oldestFailed != 0 {
		// hold the watermark below the oldest failure so the next sweep reaches it again
		watermark = max(boundary, min(watermark, oldestFailed-1))
	}
	if !e.saveCursor(ctx, sourceID, domain.CursorState{WatermarkDate: watermark}) {
		stats.Aborted = true
	}

	stats.Watermark = watermark
	stats.Duration = time.Since(start)
	logger.Info("sweep completed",
		"pages", stats.Pages,
		"new", stats.New,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"watermark", watermark,
		"duration", stats.Duration,
	)
	return stats
}

// progress is the cursor of a sweep that has not concluded yet.
func progress(boundary int64, offset int, maxSeen, oldestFailed int64) domain.CursorState {
	return domain.CursorState{
		WatermarkDate: boundary,
		PageOffset:    offset,
		PendingDate:   maxSeen,
		RetryDate:     oldestFailed,
	}
}

func (e *Engine) route(ctx context.Context, sourceID int64, item domain.FeedPost, stats *domain.SweepStats) routeOutcome {
	if strings.TrimSpace(item.Text) == "" {
		return outcomeSkipped
	}

	existing, err := e.posts.Get(ctx, item.ID)
	if err != nil {
		e.emitError(ctx, domain.AsError(err, domain.CodeStorage, "load post").WithSource(sourceID).WithPost(item.ID))
		return outcomeFailed
	}
	if existing != nil && existing.Processed() {
		return outcomeSkipped
	}

	post := domain.Post{
		ID:       item.ID,
		SourceID: sourceID,
		Date:     item.Date,
		Original: item.Text,
	}
	stats.New++
	e.observer.NewPostDetected(ctx, post)

	if existing == nil {
		if err := e.posts.Put(ctx, post); err != nil {
			e.emitError(ctx, domain.AsError(err, domain.CodeStorage, "save post").WithSource(sourceID).WithPost(item.ID))
			return outcomeFailed
		}
	}

	if _, err := e.process(ctx, post); err != nil {
		return outcomeFailed
	}
	return outcomeProcessed
}

// Reprocess rewrites a stored post again and appends the new variant.
func (e *Engine) Reprocess(ctx context.Context, postID int64) (domain.Post, error) {
	post, err := e.posts.Get(ctx, postID)
	if err != nil {
		return domain.Post{}, err
	}
	if post == nil {
		return domain.Post{}, fmt.Errorf("post %d: %w", postID, domain.ErrNotFound)
	}
	return e.process(ctx, *post)
}

// process rewrites the original text of post and stores the variant.
// Failures are emitted and returned.
func (e *Engine) process(ctx context.Context, post domain.Post) (domain.Post, error) {
	variant, err := e.rewriter.Rewrite(ctx, post.Original)
	if err != nil {
		coded := domain.AsError(err, domain.CodeRewrite, "rewrite").WithSource(post.SourceID).WithPost(post.ID)
		e.emitError(ctx, coded)
		return domain.Post{}, coded
	}

	updated, err := e.posts.AppendVariant(ctx, post, variant)
	if err != nil {
		coded := domain.AsError(err, domain.CodeStorage, "append variant").WithSource(post.SourceID).WithPost(post.ID)
		e.emitError(ctx, coded)
		return domain.Post{}, coded
	}

	e.observer.PostProcessed(ctx, updated)
	return updated, nil
}

func (e *Engine) saveCursor(ctx context.Context, sourceID int64, state domain.CursorState) bool {
	if err := e.cursors.Put(ctx, sourceID, state); err != nil {
		e.emitError(ctx, domain.AsError(err, domain.CodeStorage, "save cursor").WithSource(sourceID))
		return false
	}
	return true
}

func (e *Engine) emitError(ctx context.Context, err *domain.Error) {
	e.observer.Error(ctx, err)
}
