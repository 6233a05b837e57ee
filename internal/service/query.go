package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"wall_rewriter/internal/domain"
)

type Reprocessor interface {
	Reprocess(ctx context.Context, postID int64) (domain.Post, error)
}

type PostFilter struct {
	SourceID int64 // zero means every source
	Limit    int   // zero means no limit
}

// QueryService is the read side used by the HTTP API.
type QueryService struct {
	posts       PostStore
	catalog     *SourceCatalog
	reprocessor Reprocessor
}

func NewQueryService(posts PostStore, catalog *SourceCatalog, reprocessor Reprocessor) *QueryService {
	return &QueryService{
		posts:       posts,
		catalog:     catalog,
		reprocessor: reprocessor,
	}
}

// ListPosts returns stored posts, newest first.
func (q *QueryService) ListPosts(ctx context.Context, filter PostFilter) ([]domain.Post, error) {
	var posts []domain.Post
	for post, err := range q.posts.All(ctx) {
		if err != nil {
			return nil, err
		}
		if filter.SourceID != 0 && post.SourceID != filter.SourceID {
			continue
		}
		posts = append(posts, post)
	}

	slices.SortFunc(posts, func(a, b domain.Post) int {
		if c := cmp.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if filter.Limit > 0 && len(posts) > filter.Limit {
		posts = posts[:filter.Limit]
	}
	return posts, nil
}

func (q *QueryService) GetPost(ctx context.Context, id int64) (domain.Post, error) {
	post, err := q.posts.Get(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	if post == nil {
		return domain.Post{}, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	return *post, nil
}

func (q *QueryService) ReprocessPost(ctx context.Context, id int64) (domain.Post, error) {
	return q.reprocessor.Reprocess(ctx, id)
}

func (q *QueryService) ListSources(ctx context.Context) ([]domain.Source, error) {
	return q.catalog.List(ctx)
}

func (q *QueryService) GetSource(ctx context.Context, id int64) (domain.Source, error) {
	return q.catalog.Get(ctx, id)
}
