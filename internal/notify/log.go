package notify

import (
	"context"
	"log/slog"

	"wall_rewriter/internal/domain"
)

// LogObserver writes every event to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger.With("component", "events")}
}

func (l *LogObserver) NewPostDetected(ctx context.Context, post domain.Post) {
	l.logger.InfoContext(ctx, "new post detected",
		"post_id", post.ID,
		"source_id", post.SourceID,
		"date", post.Date,
	)
}

func (l *LogObserver) PostProcessed(ctx context.Context, post domain.Post) {
	l.logger.InfoContext(ctx, "post processed",
		"post_id", post.ID,
		"source_id", post.SourceID,
		"variants", len(post.Variants),
		"original", post.Original,
		"rewritten", post.Latest(),
	)
}

func (l *LogObserver) Error(ctx context.Context, err *domain.Error) {
	attrs := []any{"code", err.Code, "error", err.Error()}
	if err.SourceID != 0 {
		attrs = append(attrs, "source_id", err.SourceID)
	}
	if err.PostID != 0 {
		attrs = append(attrs, "post_id", err.PostID)
	}
	l.logger.ErrorContext(ctx, "pipeline error", attrs...)
}
