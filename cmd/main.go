package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatline/backend/internal/account"
	"chatline/backend/internal/api/handler"
	"chatline/backend/internal/assets"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/chathub"
	"chatline/backend/internal/config"
	"chatline/backend/internal/conversation"
	"chatline/backend/internal/events"
	"chatline/backend/internal/localization"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/metrics"
	"chatline/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 15 * time.Second

// setupPresenceMirror connects Redis when configured. The returned mirror is
// nil when presence is kept in memory only.
func setupPresenceMirror(ctx context.Context, cfg config.RedisConfig) (*redis.Client, chathub.Mirror, error) {
	if cfg.Address == "" {
		return nil, nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	mirror := chathub.NewRedisMirror(rdb, cfg.Prefix)
	// nobody is connected to a process that just started
	if err := mirror.Reset(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("reset presence mirror: %w", err)
	}
	return rdb, mirror, nil
}

func setupAssets(ctx context.Context, cfg config.AssetsConfig) (*assets.Uploader, error) {
	if !cfg.Enabled() {
		l := logger.L()
		l.Warn().Msg("no asset bucket configured, images are stored inline as data URIs")
		return assets.NewUploader(assets.InlineStore{}), nil
	}
	s3, err := assets.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("asset store: %w", err)
	}
	return assets.NewUploader(s3), nil
}

// openStore is replaced in tests.
var openStore = storage.Open

// backends are the external connections the server holds for its lifetime.
type backends struct {
	store    storage.Storage
	rdb      *redis.Client
	mirror   chathub.Mirror
	uploader *assets.Uploader
}

// openBackends connects storage, presence and assets in that order. On error
// everything opened so far is closed again.
func openBackends(ctx context.Context, cfg *config.Config) (_ *backends, err error) {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	b := &backends{store: store}
	defer func() {
		if err != nil {
			b.close(context.Background())
		}
	}()

	if b.rdb, b.mirror, err = setupPresenceMirror(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if b.uploader, err = setupAssets(ctx, cfg.Assets); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *backends) close(ctx context.Context) {
	log := logger.L()
	if b.rdb != nil {
		if err := b.rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
	if err := b.store.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("close store")
	}
}

func setupPublisher(cfg config.KafkaConfig) events.Publisher {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return events.Noop{}
	}
	return events.NewKafkaPublisher(brokers, cfg.Topic)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log := logger.L()
	log.Info().Str("env", cfg.Server.Env).Str("store", cfg.Store.Driver).Msg("starting chatline backend")

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage, presence mirror and assets
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	store, uploader := b.store, b.uploader

	// 2. Presence
	m := metrics.New()
	registry := chathub.NewRegistry(store, b.mirror, m)
	hub := chathub.NewManagerService(registry, chathub.HeartbeatFrom(cfg.WebSocket), m)

	// 3. Services
	publisher := setupPublisher(cfg.Kafka)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	accounts := account.NewService(store, tokens, uploader)
	conversations := conversation.NewService(store, hub, uploader, publisher)

	locales, err := localization.Default()
	if err != nil {
		conversations.Close()
		registry.Close()
		_ = publisher.Close()
		b.close(context.Background())
		return fmt.Errorf("load translations: %w", err)
	}

	// 4. HTTP
	h := handler.NewHandler(handler.Deps{
		Hub:           hub,
		Accounts:      accounts,
		Conversations: conversations,
		Tokens:        tokens,
		Locales:       locales,
		Metrics:       m,
		Store:         store,
		Config:        cfg,
	})
	h.StartJanitors(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	conversations.Close()
	registry.Close()
	if err := publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("close event publisher")
	}
	b.close(shutdownCtx)
	log.Info().Msg("stopped")
	return serveErr
}

func main() {
	if err := run(); err != nil {
		l := logger.L()
		l.Fatal().Err(err).Msg("chatline backend exited")
	}
}
