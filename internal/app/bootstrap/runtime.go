package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/support-intel/internal/config"
	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildConversationStore picks the store backend from config. The returned
// closer releases the underlying connection and is never nil.
func BuildConversationStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.Store, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	switch cfg.StoreBackend {
	case "", "memory":
		logger.Info("conversation store: memory")
		return conversation.NewMemoryStore(), noop, nil
	case "redis":
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, noop, fmt.Errorf("bootstrap: redis store requested but %q is unreachable", cfg.RedisAddr)
		}
		logger.Info("conversation store: redis", "addr", cfg.RedisAddr, "ttl", cfg.ConversationTTL)
		return conversation.NewRedisStore(client, cfg.ConversationTTL), func() { _ = client.Close() }, nil
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, noop, fmt.Errorf("bootstrap: postgres store requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		logger.Info("conversation store: postgres")
		return conversation.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
