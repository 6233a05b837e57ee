// Package gigachat is a client for the GigaChat OAuth and chat APIs.
package gigachat

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"wall_rewriter/internal/domain"
)

type Config struct {
	AuthURL  string
	BaseURL  string
	Scope    string
	Model    string
	ClientID string
	// CAFile is an optional PEM bundle trusted in addition to the system roots.
	CAFile  string
	Timeout time.Duration
}

type Client struct {
	httpClient *http.Client
	authURL    string
	baseURL    string
	scope      string
	model      string
	clientID   string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CAFile != "" {
		pool, err := loadCertPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		authURL:    cfg.AuthURL,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		scope:      cfg.Scope,
		model:      cfg.Model,
		clientID:   cfg.ClientID,
		logger:     logger.With("component", "gigachat"),
	}, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return pool, nil
}

// ObtainToken exchanges the authorization key for an access token.
func (c *Client) ObtainToken(ctx context.Context, apiKey string) (string, error) {
	form := url.Values{}
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+apiKey)
	req.Header.Set("RqUID", uuid.NewString())

	var resp tokenResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("obtain token: %w", err)
	}
	return resp.AccessToken, nil
}

// CountTokens prices each text in model tokens.
func (c *Client) CountTokens(ctx context.Context, token string, texts []string) ([]int, error) {
	var items []countItem
	err := c.post(ctx, token, "/tokens/count", countRequest{Model: c.model, Input: texts}, &items)
	if err != nil {
		return nil, fmt.Errorf("count tokens: %w", err)
	}
	if len(items) != len(texts) {
		return nil, fmt.Errorf("count tokens: got %d results for %d inputs", len(items), len(texts))
	}

	counts := make([]int, len(items))
	for i, item := range items {
		counts[i] = item.Tokens
	}
	return counts, nil
}

// Complete runs a chat completion and joins the returned choices.
func (c *Client) Complete(ctx context.Context, token string, messages []domain.Message) (string, error) {
	body := completionRequest{
		Model:    c.model,
		Stream:   false,
		Messages: messages,
	}

	var resp completionResponse
	if err := c.post(ctx, token, "/chat/completions", body, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices")
	}

	parts := make([]string, len(resp.Choices))
	for i, choice := range resp.Choices {
		parts[i] = choice.Message.Content
	}
	return strings.Join(parts, "\n"), nil
}

func (c *Client) post(ctx context.Context, token, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.clientID != "" {
		req.Header.Set("X-Client-Id", c.clientID)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrAuthExpired)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("request completed", "url", req.URL.Path, "status", resp.StatusCode)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
