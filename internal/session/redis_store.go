package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	redisKeyPrefix = "chatbot_session:"
	// redisRetention keeps expired hashes around long enough for Lookup to
	// observe and delete them explicitly.
	redisRetention = time.Hour
)

// touchScript updates expiresAt only when the hash still exists.
var touchScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
redis.call("HSET", KEYS[1], "expiresAt", ARGV[1])
redis.call("PEXPIREAT", KEYS[1], ARGV[2])
return redis.call("HGETALL", KEYS[1])
`)

// RedisStore persists records as Redis hashes.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		tracer: otel.Tracer("chatbotproxy.internal.session.redis"),
	}
}

func (s *RedisStore) Get(ctx context.Context, conversationID string) (Record, error) {
	ctx, span := s.tracer.Start(ctx, "session.redis.get")
	defer span.End()

	fields, err := s.redis.HGetAll(ctx, redisKey(conversationID)).Result()
	if err != nil {
		span.RecordError(err)
		return Record{}, fmt.Errorf("session: redis get: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}
	return decodeRedisHash(conversationID, fields)
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	ctx, span := s.tracer.Start(ctx, "session.redis.put")
	defer span.End()

	key := redisKey(rec.ConversationID)
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"sessionId", rec.SessionID,
		"originAddress", rec.OriginAddress,
		"expiresAt", strconv.FormatInt(rec.ExpiresAt.UnixMilli(), 10),
	)
	pipe.PExpireAt(ctx, key, rec.ExpiresAt.Add(redisRetention))
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: redis put: %w", err)
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, conversationID string, expiresAt time.Time) (Record, error) {
	ctx, span := s.tracer.Start(ctx, "session.redis.touch")
	defer span.End()

	res, err := touchScript.Run(ctx, s.redis,
		[]string{redisKey(conversationID)},
		expiresAt.UnixMilli(),
		expiresAt.Add(redisRetention).UnixMilli(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return Record{}, fmt.Errorf("session: redis touch: %w", err)
	}
	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}
	return decodeRedisHash(conversationID, fields)
}

func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	ctx, span := s.tracer.Start(ctx, "session.redis.delete")
	defer span.End()

	if err := s.redis.Del(ctx, redisKey(conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: redis delete: %w", err)
	}
	return nil
}

func redisKey(conversationID string) string {
	return redisKeyPrefix + conversationID
}

func decodeRedisHash(conversationID string, fields map[string]string) (Record, error) {
	ms, err := strconv.ParseInt(fields["expiresAt"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("session: decode expiresAt for %s: %w", conversationID, err)
	}
	return Record{
		ConversationID: conversationID,
		SessionID:      fields["sessionId"],
		OriginAddress:  fields["originAddress"],
		ExpiresAt:      time.UnixMilli(ms),
	}, nil
}
