package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"iter"

	"wall_rewriter/internal/domain"
)

type FeedClient interface {
	ListPosts(ctx context.Context, sourceID int64, offset, count int) ([]domain.FeedPost, error)
	ListSourceMetadata(ctx context.Context, sourceIDs []int64) ([]domain.Source, error)
}

type RewriteClient interface {
	CountTokens(ctx context.Context, token string, texts []string) ([]int, error)
	Complete(ctx context.Context, token string, messages []domain.Message) (string, error)
}

type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

type SourceRefresher interface {
	Refresh(ctx context.Context) error
}

type Observer interface {
	NewPostDetected(ctx context.Context, post domain.Post)
	PostProcessed(ctx context.Context, post domain.Post)
	Error(ctx context.Context, err *domain.Error)
}

type CursorStore interface {
	Get(ctx context.Context, sourceID int64) (*domain.CursorState, error)
	Put(ctx context.Context, sourceID int64, state domain.CursorState) error
}

type PostStore interface {
	Get(ctx context.Context, id int64) (*domain.Post, error)
	Put(ctx context.Context, post domain.Post) error
	AppendVariant(ctx context.Context, post domain.Post, variant string) (domain.Post, error)
	All(ctx context.Context) iter.Seq2[domain.Post, error]
}

type SourceStore interface {
	Get(ctx context.Context, id int64) (*domain.Source, error)
	Put(ctx context.Context, src domain.Source) error
}
