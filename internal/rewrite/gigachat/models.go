package gigachat

import "wall_rewriter/internal/domain"

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

type countRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type countItem struct {
	Object     string `json:"object"`
	Tokens     int    `json:"tokens"`
	Characters int    `json:"characters"`
}

type completionRequest struct {
	Model          string           `json:"model"`
	Stream         bool             `json:"stream"`
	UpdateInterval int              `json:"update_interval"`
	Messages       []domain.Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message domain.Message `json:"message"`
	} `json:"choices"`
}
