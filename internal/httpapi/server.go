// Package httpapi exposes stored posts and sources over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"wall_rewriter/internal/domain"
	"wall_rewriter/internal/service"
)

// Querier is the read side the API serves.
type Querier interface {
	ListPosts(ctx context.Context, filter service.PostFilter) ([]domain.Post, error)
	GetPost(ctx context.Context, id int64) (domain.Post, error)
	ReprocessPost(ctx context.Context, id int64) (domain.Post, error)
	ListSources(ctx context.Context) ([]domain.Source, error)
	GetSource(ctx context.Context, id int64) (domain.Source, error)
}

type Config struct {
	Port      int
	PublicDir string
	Username  string
	Password  string
}

type Server struct {
	cfg        Config
	query      Querier
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewServer(cfg Config, query Querier, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		query:  query,
		logger: logger.With("component", "http"),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/posts", s.handleListPosts)
	api.HandleFunc("GET /api/posts/{id}", s.handleGetPost)
	api.HandleFunc("POST /api/posts/{id}/reprocess", s.handleReprocess)
	api.HandleFunc("GET /api/sources", s.handleListSources)
	api.HandleFunc("GET /api/sources/{id}", s.handleGetSource)
	if cfg.PublicDir != "" {
		api.Handle("GET /", http.FileServer(http.Dir(cfg.PublicDir)))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/", s.withBasicAuth(api))

	s.handler = withLogging(s.logger, mux)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // reprocess waits on the rewrite service
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks until the server is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	var filter service.PostFilter
	if v := r.URL.Query().Get("groupId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "groupId must be an integer")
			return
		}
		filter.SourceID = id
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	posts, err := s.query.ListPosts(r.Context(), filter)
	if err != nil {
		s.fail(w, "list posts", err)
		return
	}
	if posts == nil {
		posts = []domain.Post{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: posts})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	post, err := s.query.GetPost(r.Context(), id)
	if err != nil {
		s.fail(w, "get post", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: post})
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	post, err := s.query.ReprocessPost(r.Context(), id)
	if err != nil {
		s.fail(w, "reprocess post", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: post})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.query.ListSources(r.Context())
	if err != nil {
		s.fail(w, "list sources", err)
		return
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: sources})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	src, err := s.query.GetSource(r.Context(), id)
	if err != nil {
		s.fail(w, "get source", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: src})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("request failed", "op", op, "code", domain.CodeOf(err), "error", err)
	status := http.StatusInternalServerError
	switch domain.CodeOf(err) {
	case domain.CodeRewrite, domain.CodeAuthExpired, domain.CodeCredential:
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}

func (s *Server) withBasicAuth(next http.Handler) http.Handler {
	if s.cfg.Username == "" {
		return next
	}
	user, pass := []byte(s.cfg.Username), []byte(s.cfg.Password)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), user) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pass) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="wall_rewriter"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
