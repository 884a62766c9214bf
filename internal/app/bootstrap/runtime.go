package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/chatbot-proxy/internal/config"
	"github.com/wolfman30/chatbot-proxy/internal/session"
	"github.com/wolfman30/chatbot-proxy/pkg/logging"
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

// SessionStore is a session.Store plus the function releasing its connections.
type SessionStore struct {
	session.Store
	Backend string
	Close   func()
}

// BuildSessionStore picks the durable store named by SESSION_STORE. awsCfg is
// only used for dynamodb.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*SessionStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.SessionStore {
	case "", appconfig.SessionStoreMemory:
		return &SessionStore{Store: session.NewMemoryStore(), Backend: appconfig.SessionStoreMemory, Close: func() {}}, nil
	case appconfig.SessionStoreRedis:
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, fmt.Errorf("bootstrap: redis session store unavailable at %q", cfg.RedisAddr)
		}
		return &SessionStore{
			Store:   session.NewRedisStore(client),
			Backend: appconfig.SessionStoreRedis,
			Close:   func() { _ = client.Close() },
		}, nil
	case appconfig.SessionStoreDynamoDB:
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: aws config required for dynamodb session store")
		}
		client := dynamodb.NewFromConfig(*awsCfg)
		return &SessionStore{
			Store:   session.NewDynamoStore(client, cfg.DynamoSessionsTable),
			Backend: appconfig.SessionStoreDynamoDB,
			Close:   func() {},
		}, nil
	case appconfig.SessionStorePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("bootstrap: DATABASE_URL required for postgres session store")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		return &SessionStore{
			Store:   session.NewPostgresStore(pool),
			Backend: appconfig.SessionStorePostgres,
			Close:   pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session store %q", cfg.SessionStore)
	}
}
