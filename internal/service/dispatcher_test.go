package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"wall_rewriter/internal/chunker"
	"wall_rewriter/internal/domain"
	"wall_rewriter/internal/service/mocks"
)

type DispatcherTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	client *mocks.MockRewriteClient
	tokens *mocks.MockTokenProvider

	dispatcher *Dispatcher
}

func (s *DispatcherTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockRewriteClient(s.ctrl)
	s.tokens = mocks.NewMockTokenProvider(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.dispatcher = NewDispatcher(s.client, s.tokens, DispatcherConfig{
		Messages: []domain.Message{{Role: "system", Content: "rewrite it"}},
		Prefix:   "Article:\n\n",
		Budget:   chunker.Budget{Tokens: 90, Characters: 1000},
	}, logger)
}

func (s *DispatcherTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func authExpired() error {
	return fmt.Errorf("status 401: %w", domain.ErrAuthExpired)
}

func (s *DispatcherTestSuite) TestRewrite_BuildsFinalUserTurn() {
	ctx := context.Background()

	s.tokens.EXPECT().Token(ctx).Return("tok", nil)
	s.client.EXPECT().CountTokens(gomock.Any(), "tok", []string{"one", "two", "three"}).Return([]int{50, 30, 50}, nil)
	s.client.EXPECT().Complete(ctx, "tok", []domain.Message{
		{Role: "system", Content: "rewrite it"},
		{Role: "user", Content: "Article:\n\none\n\ntwo"},
	}).Return("rewritten", nil)

	result, err := s.dispatcher.Rewrite(ctx, "one\n\ntwo\n\nthree")

	s.NoError(err)
	s.Equal("rewritten", result)
}

func (s *DispatcherTestSuite) TestRewrite_RefreshesOnceOnAuthExpiry() {
	ctx := context.Background()

	s.tokens.EXPECT().Token(ctx).Return("stale", nil)
	s.tokens.EXPECT().Refresh(ctx).Return("fresh", nil).Times(1)
	s.client.EXPECT().CountTokens(gomock.Any(), gomock.Any(), gomock.Any()).Return([]int{1}, nil).Times(2)
	gomock.InOrder(
		s.client.EXPECT().Complete(ctx, "stale", gomock.Any()).Return("", authExpired()),
		s.client.EXPECT().Complete(ctx, "fresh", gomock.Any()).Return("done", nil),
	)

	result, err := s.dispatcher.Rewrite(ctx, "text")

	s.NoError(err)
	s.Equal("done", result)
}

func (s *DispatcherTestSuite) TestRewrite_GivesUpAfterOneRetry() {
	ctx := context.Background()

	s.tokens.EXPECT().Token(ctx).Return("stale", nil)
	s.tokens.EXPECT().Refresh(ctx).Return("still-stale", nil).Times(1)
	s.client.EXPECT().CountTokens(gomock.Any(), gomock.Any(), gomock.Any()).Return([]int{1}, nil).Times(2)
	s.client.EXPECT().Complete(ctx, gomock.Any(), gomock.Any()).Return("", authExpired()).Times(2)

	_, err := s.dispatcher.Rewrite(ctx, "text")

	s.Error(err)
	s.Equal(domain.CodeAuthExpired, domain.CodeOf(err))
	s.ErrorIs(err, domain.ErrAuthExpired)
}

func (s *DispatcherTestSuite) TestRewrite_PricingAuthFailureRefreshes() {
	ctx := context.Background()

	s.tokens.EXPECT().Token(ctx).Return("stale", nil)
	s.tokens.EXPECT().Refresh(ctx).Return("fresh", nil)
	gomock.InOrder(
		s.client.EXPECT().CountTokens(gomock.Any(), "stale", gomock.Any()).Return(nil, authExpired()),
		s.client.EXPECT().CountTokens(gomock.Any(), "fresh", gomock.Any()).Return([]int{1}, nil),
	)
	s.client.EXPECT().Complete(ctx, "fresh", gomock.Any()).Return("ok", nil)

	result, err := s.dispatcher.Rewrite(ctx, "text")

	s.NoError(err)
	s.Equal("ok", result)
}

func (s *DispatcherTestSuite) TestRewrite_OtherFailuresAreNotRetried() {
	ctx := context.Background()

	s.tokens.EXPECT().Token(ctx).Return("tok", nil)
	s.client.EXPECT().CountTokens(gomock.Any(), gomock.Any(), gomock.Any()).Return([]int{1}, nil)
	s.client.EXPECT().Complete(ctx, "tok", gomock.Any()).Return("", errors.New("rate limited"))

	_, err := s.dispatcher.Rewrite(ctx, "text")

	s.Error(err)
	s.Equal(domain.CodeRewrite, domain.CodeOf(err))
}

func (s *DispatcherTestSuite) TestRewrite_CredentialFailure() {
	ctx := context.Background()

	s.tokens.EXPECT().Token(ctx).Return("", domain.NewError(domain.CodeCredential, "obtain access token", errors.New("denied")))

	_, err := s.dispatcher.Rewrite(ctx, "text")

	s.Error(err)
	s.Equal(domain.CodeCredential, domain.CodeOf(err))
}

func (s *DispatcherTestSuite) TestRewrite_OversizeFirstParagraphSendsEmptyText() {
	ctx := context.Background()

	s.tokens.EXPECT().Token(ctx).Return("tok", nil)
	s.client.EXPECT().CountTokens(gomock.Any(), "tok", []string{"huge"}).Return([]int{500}, nil)
	s.client.EXPECT().Complete(ctx, "tok", []domain.Message{
		{Role: "system", Content: "rewrite it"},
		{Role: "user", Content: "Article:\n\n"},
	}).Return("nothing to say", nil)

	result, err := s.dispatcher.Rewrite(ctx, "huge")

	s.NoError(err)
	s.Equal("nothing to say", result)
}
