package service

import (
	"context"
	"errors"
	"log/slog"

	"wall_rewriter/internal/chunker"
	"wall_rewriter/internal/domain"
)

// maxAuthRetries bounds how many times a rejected credential is refreshed
// within a single rewrite.
const maxAuthRetries = 1

type DispatcherConfig struct {
	Messages []domain.Message
	Prefix   string
	Budget   chunker.Budget
}

// Dispatcher turns the original text of a post into one rewritten variant.
type Dispatcher struct {
	client RewriteClient
	tokens TokenProvider
	config DispatcherConfig
	logger *slog.Logger
}

func NewDispatcher(client RewriteClient, tokens TokenProvider, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		tokens: tokens,
		config: cfg,
		logger: logger.With("component", "dispatcher"),
	}
}

func (d *Dispatcher) Rewrite(ctx context.Context, text string) (string, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return "", domain.AsError(err, domain.CodeCredential, "obtain access token")
	}

	for retries := 0; ; retries++ {
		result, err := d.attempt(ctx, token, text)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrAuthExpired) {
			return "", domain.NewError(domain.CodeRewrite, "rewrite", err)
		}
		if retries >= maxAuthRetries {
			return "", domain.NewError(domain.CodeAuthExpired, "rewrite", err)
		}

		d.logger.Info("access token rejected, refreshing")
		token, err = d.tokens.Refresh(ctx)
		if err != nil {
			return "", domain.AsError(err, domain.CodeCredential, "refresh access token")
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, token, text string) (string, error) {
	count := func(ctx context.Context, units []string) ([]int, error) {
		return d.client.CountTokens(ctx, token, units)
	}

	truncated, err := chunker.Chunk(ctx, text, count, d.config.Budget)
	if err != nil {
		return "", err
	}
	if len(truncated) < len(text) {
		d.logger.Debug("text truncated", "original_bytes", len(text), "truncated_bytes", len(truncated))
	}

	messages := make([]domain.Message, 0, len(d.config.Messages)+1)
	messages = append(messages, d.config.Messages...)
	messages = append(messages, domain.Message{Role: "user", Content: d.config.Prefix + truncated})

	return d.client.Complete(ctx, token, messages)
}
