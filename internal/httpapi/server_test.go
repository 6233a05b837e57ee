package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wall_rewriter/internal/domain"
	"wall_rewriter/internal/service"
)

type fakeQuerier struct {
	posts       map[int64]domain.Post
	sources     []domain.Source
	lastFilter  service.PostFilter
	reprocessed []int64
	err         error
}

func (f *fakeQuerier) ListPosts(_ context.Context, filter service.PostFilter) ([]domain.Post, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Post
	for _, p := range f.posts {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeQuerier) GetPost(_ context.Context, id int64) (domain.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return domain.Post{}, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (f *fakeQuerier) ReprocessPost(_ context.Context, id int64) (domain.Post, error) {
	f.reprocessed = append(f.reprocessed, id)
	if f.err != nil {
		return domain.Post{}, f.err
	}
	p := f.posts[id]
	p.Variants = append(p.Variants, "again")
	return p, nil
}

func (f *fakeQuerier) ListSources(context.Context) ([]domain.Source, error) {
	return f.sources, nil
}

func (f *fakeQuerier) GetSource(_ context.Context, id int64) (domain.Source, error) {
	for _, s := range f.sources {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Source{}, domain.ErrNotFound
}

func newTestServer(cfg Config, q Querier) http.Handler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	return NewServer(cfg, q, logger).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, auth bool) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if auth {
		req.SetBasicAuth("admin", "secret")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h := newTestServer(Config{Username: "admin", Password: "secret"}, &fakeQuerier{})

	rec, env := do(t, h, http.MethodGet, "/health", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestAPI_RequiresBasicAuth(t *testing.T) {
	h := newTestServer(Config{Username: "admin", Password: "secret"}, &fakeQuerier{})

	rec, env := do(t, h, http.MethodGet, "/api/posts", false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListPosts(t *testing.T) {
	q := &fakeQuerier{posts: map[int64]domain.Post{1: {ID: 1, SourceID: 5, Original: "o", Variants: []string{"r"}}}}
	h := newTestServer(Config{Username: "admin", Password: "secret"}, q)

	rec, env := do(t, h, http.MethodGet, "/api/posts?groupId=5&limit=20", true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, service.PostFilter{SourceID: 5, Limit: 20}, q.lastFilter)

	var body struct {
		Data []domain.Post `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, []string{"r"}, body.Data[0].Variants)
}

func TestListPosts_EmptyIsArray(t *testing.T) {
	h := newTestServer(Config{}, &fakeQuerier{})

	rec, _ := do(t, h, http.MethodGet, "/api/posts", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}

func TestListPosts_BadQuery(t *testing.T) {
	h := newTestServer(Config{}, &fakeQuerier{})

	rec, env := do(t, h, http.MethodGet, "/api/posts?limit=zero", false)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestGetPost(t *testing.T) {
	h := newTestServer(Config{}, &fakeQuerier{posts: map[int64]domain.Post{7: {ID: 7}}})

	rec, env := do(t, h, http.MethodGet, "/api/posts/7", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, env = do(t, h, http.MethodGet, "/api/posts/8", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "not found")

	rec, _ = do(t, h, http.MethodGet, "/api/posts/abc", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReprocess(t *testing.T) {
	q := &fakeQuerier{posts: map[int64]domain.Post{7: {ID: 7, Variants: []string{"first"}}}}
	h := newTestServer(Config{}, q)

	rec, env := do(t, h, http.MethodPost, "/api/posts/7/reprocess", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, []int64{7}, q.reprocessed)
}

func TestReprocess_RewriteFailure(t *testing.T) {
	q := &fakeQuerier{err: domain.NewError(domain.CodeRewrite, "rewrite", errors.New("rate limited"))}
	h := newTestServer(Config{}, q)

	rec, env := do(t, h, http.MethodPost, "/api/posts/7/reprocess", false)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "rewrite: rate limited", env.Error)
}

func TestReprocess_WrongMethod(t *testing.T) {
	h := newTestServer(Config{}, &fakeQuerier{})

	rec, _ := do(t, h, http.MethodGet, "/api/posts/7/reprocess", false)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSources(t *testing.T) {
	h := newTestServer(Config{}, &fakeQuerier{sources: []domain.Source{{ID: 1, Name: "one"}}})

	rec, env := do(t, h, http.MethodGet, "/api/sources", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = do(t, h, http.MethodGet, "/api/sources/1", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/sources/2", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternalError(t *testing.T) {
	h := newTestServer(Config{}, &fakeQuerier{err: domain.NewError(domain.CodeStorage, "list", errors.New("disk"))})

	rec, env := do(t, h, http.MethodGet, "/api/posts", false)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>posts</h1>"), 0o600))
	h := newTestServer(Config{PublicDir: dir, Username: "admin", Password: "secret"}, &fakeQuerier{})

	rec, _ := do(t, h, http.MethodGet, "/", true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>posts</h1>")
}
