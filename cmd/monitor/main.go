package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"wall_rewriter/internal/chunker"
	"wall_rewriter/internal/config"
	"wall_rewriter/internal/credential"
	"wall_rewriter/internal/domain"
	"wall_rewriter/internal/httpapi"
	"wall_rewriter/internal/notify"
	"wall_rewriter/internal/publisher"
	"wall_rewriter/internal/rewrite/gigachat"
	"wall_rewriter/internal/scheduler"
	"wall_rewriter/internal/service"
	"wall_rewriter/internal/source/vk"
	"wall_rewriter/internal/storage"
	"wall_rewriter/internal/storage/postgres"
	"wall_rewriter/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("monitor stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kv, err := openKV(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer kv.Close()

	cursors := storage.NewCursorStore(kv)
	posts := storage.NewPostStore(kv)
	sources := storage.NewSourceStore(kv)

	hub := notify.NewHub(logger)
	hub.Subscribe(notify.NewLogObserver(logger))

	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer rabbitMQ.Close()
		hub.Subscribe(rabbitMQ)
	}

	feed := vk.New(vk.Config{
		BaseURL:        cfg.VK.BaseURL,
		AccessToken:    cfg.VK.AccessToken,
		ClientID:       cfg.VK.ClientID,
		APIVersion:     cfg.VK.APIVersion,
		Timeout:        cfg.VK.Timeout,
		MaxAttempts:    cfg.VK.Retry.MaxAttempts,
		InitialBackoff: cfg.VK.Retry.InitialBackoff,
		MaxBackoff:     cfg.VK.Retry.MaxBackoff,
	}, logger)

	giga, err := gigachat.New(gigachat.Config{
		AuthURL:  cfg.GigaChat.AuthURL,
		BaseURL:  cfg.GigaChat.BaseURL,
		Scope:    cfg.GigaChat.Scope,
		Model:    cfg.GigaChat.Model,
		ClientID: cfg.GigaChat.ClientID,
		CAFile:   cfg.GigaChat.CAFile,
		Timeout:  cfg.GigaChat.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create gigachat client: %w", err)
	}

	tokens := credential.NewManager(giga, cfg.GigaChat.APIKey, logger)
	if _, err := tokens.Refresh(ctx); err != nil {
		// not fatal: the dispatcher asks for a token again on first use
		logger.Warn("initial token refresh failed", "error", err)
		hub.Error(ctx, domain.AsError(err, domain.CodeCredential, "initial token refresh"))
	}

	dispatcher := service.NewDispatcher(giga, tokens, service.DispatcherConfig{
		Messages: cfg.Monitor.Messages,
		Prefix:   cfg.Monitor.Prefix(),
		Budget: chunker.Budget{
			Tokens:     cfg.GigaChat.MaxTokens,
			Characters: cfg.GigaChat.MaxCharacters,
		},
	}, logger)

	// the engine fills in missing source metadata at the start of every cycle
	catalog := service.NewSourceCatalog(feed, sources, hub, cfg.Monitor.GroupIDs, logger)

	engine := service.NewEngine(feed, cursors, posts, dispatcher, catalog, hub, service.EngineConfig{
		SourceIDs: cfg.Monitor.GroupIDs,
		PageSize:  cfg.VK.PageSize,
		Lookback:  cfg.Monitor.Lookback,
	}, logger)

	server := httpapi.NewServer(httpapi.Config{
		Port:      cfg.HTTP.Port,
		PublicDir: cfg.HTTP.PublicDir,
		Username:  cfg.HTTP.Auth.Username,
		Password:  cfg.HTTP.Auth.Password,
	}, service.NewQueryService(posts, catalog, engine), logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			cancel()
		}
	}()

	logger.Info("starting wall monitor",
		"sources", cfg.Monitor.GroupIDs,
		"interval", cfg.Monitor.PollInterval,
		"storage", cfg.Storage.Type,
	)

	sched := scheduler.NewScheduler(engine, cfg.Monitor.PollInterval, cfg.Monitor.CycleTimeout, logger)
	schedErr := sched.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	if schedErr != nil && !errors.Is(schedErr, context.Canceled) {
		return fmt.Errorf("scheduler: %w", schedErr)
	}
	return nil
}

func openKV(cfg config.StorageConfig, logger *slog.Logger) (storage.KV, error) {
	switch cfg.Type {
	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
		return postgres.NewKVStore(db), nil
	case "sqlite":
		kv, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite database", "path", cfg.SQLite.Path)
		return kv, nil
	case "memory":
		logger.Warn("using in-memory storage, state is lost on exit")
		return storage.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
