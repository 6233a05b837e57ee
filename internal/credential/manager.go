package credential

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"wall_rewriter/internal/domain"
)

// TokenClient exchanges an API key for a bearer credential.
type TokenClient interface {
	ObtainToken(ctx context.Context, apiKey string) (string, error)
}

// Manager holds the bearer credential for the rewrite service in memory.
// Expiry is not tracked; callers ask for a refresh when the service
// rejects the current token.
type Manager struct {
	client TokenClient
	apiKey string
	logger *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	token string
}

func NewManager(client TokenClient, apiKey string, logger *slog.Logger) *Manager {
	return &Manager{
		client: client,
		apiKey: apiKey,
		logger: logger.With("component", "credential"),
	}
}

// Token returns the held credential, obtaining one first if none is held.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token != "" {
		return token, nil
	}
	return m.Refresh(ctx)
}

// Refresh obtains a new credential. Concurrent callers share a single
// in-flight request and all receive its result.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	ch := m.group.DoChan("refresh", func() (any, error) {
		// detached so one impatient waiter does not fail the others
		token, err := m.client.ObtainToken(context.WithoutCancel(ctx), m.apiKey)
		if err != nil {
			return "", domain.NewError(domain.CodeCredential, "obtain access token", err)
		}
		if token == "" {
			return "", domain.NewError(domain.CodeCredential, "obtain access token: empty token", nil)
		}

		m.mu.Lock()
		m.token = token
		m.mu.Unlock()

		m.logger.Debug("access token refreshed")
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
