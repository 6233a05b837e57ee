package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"wall_rewriter/internal/domain"
	"wall_rewriter/internal/storage"
)

type SQLiteKVSuite struct {
	suite.Suite
	ctx   context.Context
	store *KVStore
}

func (s *SQLiteKVSuite) SetupTest() {
	s.ctx = context.Background()

	store, err := Open(filepath.Join(s.T().TempDir(), "nested", "kv.sqlite"))
	s.Require().NoError(err)
	s.store = store
}

func (s *SQLiteKVSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func TestSQLiteKVSuite(t *testing.T) {
	suite.Run(t, new(SQLiteKVSuite))
}

func (s *SQLiteKVSuite) TestGet_Missing() {
	_, err := s.store.Get(s.ctx, "nope")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *SQLiteKVSuite) TestPut_Overwrites() {
	s.Require().NoError(s.store.Put(s.ctx, "post_1", []byte(`{"a":1}`)))
	s.Require().NoError(s.store.Put(s.ctx, "post_1", []byte(`{"a":2}`)))

	value, err := s.store.Get(s.ctx, "post_1")
	s.NoError(err)
	s.Equal(`{"a":2}`, string(value))
}

func (s *SQLiteKVSuite) TestKeys_FiltersByPrefix() {
	for _, k := range []string{"post_2", "cursor_1", "post_1", "postscript"} {
		s.Require().NoError(s.store.Put(s.ctx, k, []byte("{}")))
	}

	keys, err := s.store.Keys(s.ctx, "post_")
	s.NoError(err)
	s.Equal([]string{"post_1", "post_2"}, keys)
}

func (s *SQLiteKVSuite) TestGetMany_SkipsMissing() {
	s.Require().NoError(s.store.Put(s.ctx, "a", []byte("1")))
	s.Require().NoError(s.store.Put(s.ctx, "b", []byte("2")))

	values, err := s.store.GetMany(s.ctx, []string{"a", "b", "c"})
	s.NoError(err)
	s.Len(values, 2)
	s.Equal("1", string(values["a"]))
	s.Equal("2", string(values["b"]))

	empty, err := s.store.GetMany(s.ctx, nil)
	s.NoError(err)
	s.Empty(empty)
}

func (s *SQLiteKVSuite) TestUpdate_CreatesAndModifies() {
	err := s.store.Update(s.ctx, "counter", func(current []byte, exists bool) ([]byte, error) {
		s.False(exists)
		return []byte("1"), nil
	})
	s.Require().NoError(err)

	err = s.store.Update(s.ctx, "counter", func(current []byte, exists bool) ([]byte, error) {
		s.True(exists)
		return append(current, '1'), nil
	})
	s.Require().NoError(err)

	value, err := s.store.Get(s.ctx, "counter")
	s.NoError(err)
	s.Equal("11", string(value))
}

func (s *SQLiteKVSuite) TestUpdate_ErrorRollsBack() {
	s.Require().NoError(s.store.Put(s.ctx, "k", []byte("keep")))
	boom := errors.New("boom")

	err := s.store.Update(s.ctx, "k", func([]byte, bool) ([]byte, error) {
		return nil, boom
	})
	s.ErrorIs(err, boom)

	value, err := s.store.Get(s.ctx, "k")
	s.NoError(err)
	s.Equal("keep", string(value))
}

func (s *SQLiteKVSuite) TestUpdate_Concurrent() {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Update(s.ctx, "n", func(current []byte, _ bool) ([]byte, error) {
				return append(current, 'x'), nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	value, err := s.store.Get(s.ctx, "n")
	s.NoError(err)
	s.Len(value, 20)
}

func (s *SQLiteKVSuite) TestPostStore_OnSQLite() {
	posts := storage.NewPostStore(s.store)
	s.Require().NoError(posts.Put(s.ctx, domain.Post{
		ID:       77,
		SourceID: 5,
		Date:     1700000000,
		Original: "original",
		Variants: []string{"rewritten"},
	}))

	got, err := posts.Get(s.ctx, 77)
	s.NoError(err)
	s.Require().NotNil(got)
	s.Equal("original", got.Original)
	s.Equal([]string{"rewritten"}, got.Variants)
}
