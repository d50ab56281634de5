package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angar2/cola-chat-back/internal/models"
)

// DefaultMessageTTL keeps a room's history a day past the default room expiry.
const DefaultMessageTTL = 8 * 24 * time.Hour

// RedisStore is a MessageLog backed by one sorted set per room, scored by
// sentAt in microseconds. Its client is shared with the rate limiter.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a new Redis store. A non-positive ttl selects
// DefaultMessageTTL.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisStoreFromClient(client, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// roomMessagesKey returns the key for a room's message sorted set.
func roomMessagesKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// roomFirstSeenKey returns the key for a room's participant -> first sentAt hash.
func roomFirstSeenKey(roomID string) string {
	return fmt.Sprintf("room:%s:first_seen", roomID)
}

// keepEarliest sets a hash field to ARGV[2] unless it already holds a
// smaller value, so out-of-order appends keep the minimum sentAt.
var keepEarliest = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if not current or tonumber(ARGV[2]) < tonumber(current) then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// AppendMessage stores a message. ID and SentAt must be set.
func (s *RedisStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	micros := msg.SentAt.UnixMicro()
	msgKey := roomMessagesKey(msg.RoomID)
	seenKey := roomFirstSeenKey(msg.RoomID)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, msgKey, redis.Z{
		Score:  float64(micros),
		Member: string(data),
	})
	// EVAL, not EVALSHA: a queued command cannot fall back on NOSCRIPT.
	keepEarliest.Eval(ctx, pipe, []string{seenKey}, msg.ParticipantID, strconv.FormatInt(micros, 10))
	pipe.Expire(ctx, msgKey, s.ttl)
	pipe.Expire(ctx, seenKey, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// FirstSeenAt returns the participant's earliest message time in a room.
func (s *RedisStore) FirstSeenAt(ctx context.Context, roomID, participantID string) (*time.Time, error) {
	raw, err := s.client.HGet(ctx, roomFirstSeenKey(roomID), participantID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	micros, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("first seen for %s: %w", participantID, err)
	}
	t := time.UnixMicro(micros).UTC()
	return &t, nil
}

// ListMessages returns a newest-first page of a room's messages.
func (s *RedisStore) ListMessages(ctx context.Context, roomID string, since *time.Time, offset, limit int) ([]models.Message, error) {
	minScore := "-inf"
	if since != nil {
		minScore = strconv.FormatInt(since.UnixMicro(), 10)
	}

	results, err := s.client.ZRevRangeByScore(ctx, roomMessagesKey(roomID), &redis.ZRangeBy{
		Min:    minScore,
		Max:    "+inf",
		Offset: int64(offset),
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		msg.SentAt = msg.SentAt.UTC()
		messages = append(messages, msg)
	}

	return messages, nil
}
