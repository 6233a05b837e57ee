package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"wall_rewriter/internal/domain"
)

// Config holds VK API client configuration.
type Config struct {
	BaseURL        string
	AccessToken    string
	ClientID       string
	APIVersion     string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client reads community walls through the VK API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	accessToken    string
	clientID       string
	apiVersion     string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new VK API client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		accessToken:    cfg.AccessToken,
		clientID:       cfg.ClientID,
		apiVersion:     cfg.APIVersion,
		maxAttempts:    max(cfg.MaxAttempts, 1),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "vk"),
	}
}

// ListPosts returns one page of a community wall, newest first.
func (c *Client) ListPosts(ctx context.Context, groupID int64, offset, count int) ([]domain.FeedPost, error) {
	params := url.Values{}
	params.Set("owner_id", "-"+strconv.FormatInt(groupID, 10))
	params.Set("count", strconv.Itoa(count))
	params.Set("offset", strconv.Itoa(offset))

	var resp WallResponse
	if err := c.call(ctx, "wall.get", params, &resp); err != nil {
		return nil, fmt.Errorf("fetch posts for group %d: %w", groupID, err)
	}

	c.logger.Debug("fetched posts",
		"group_id", groupID,
		"offset", offset,
		"items", len(resp.Items),
	)

	posts := make([]domain.FeedPost, 0, len(resp.Items))
	for _, item := range resp.Items {
		posts = append(posts, domain.FeedPost{
			ID:     item.ID,
			Date:   item.Date,
			Text:   strings.TrimSpace(item.Text),
			Pinned: item.IsPinned == 1,
		})
	}
	return posts, nil
}

// ListSourceMetadata returns display metadata for the given communities.
func (c *Client) ListSourceMetadata(ctx context.Context, groupIDs []int64) ([]domain.Source, error) {
	ids := make([]string, len(groupIDs))
	for i, id := range groupIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	params := url.Values{}
	params.Set("group_ids", strings.Join(ids, ","))
	params.Set("fields", "links")

	var groups []Group
	if err := c.call(ctx, "groups.getById", params, &groups); err != nil {
		return nil, fmt.Errorf("fetch groups %s: %w", strings.Join(ids, ","), err)
	}

	sources := make([]domain.Source, 0, len(groups))
	for _, g := range groups {
		sources = append(sources, domain.Source{
			ID:         g.ID,
			Name:       g.Name,
			ScreenName: g.ScreenName,
			Type:       g.Type,
			IsClosed:   g.IsClosed != 0,
			Photo:      firstNonEmpty(g.Photo200, g.Photo100, g.Photo50),
		})
	}
	return sources, nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("access_token", c.accessToken)
	params.Set("v", c.apiVersion)
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, method, params.Encode())

	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.doRequest(ctx, endpoint, out)
		if err == nil || !retryable(err) {
			return err
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"method", method,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.code)
}

// retryable reports whether another attempt may succeed. API-level errors
// (bad token, closed wall) and client errors will not.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		// 6: too many requests per second, 10: internal server error
		return apiErr.Code == 6 || apiErr.Code == 10
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) doRequest(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.clientID != "" {
		req.Header.Set("X-Client-Id", c.clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil {
		return env.Error
	}
	if len(env.Response) == 0 {
		return errors.New("empty response")
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
