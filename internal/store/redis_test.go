package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angar2/cola-chat-back/internal/crypto"
	"github.com/angar2/cola-chat-back/internal/models"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, ttl)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore_MessageLog(t *testing.T) {
	s, _ := newTestRedisStore(t, 0)
	runMessageLogSuite(t, s, func(*testing.T, string, ...string) {})
}

func TestRedisStore_KeysExpire(t *testing.T) {
	req := require.New(t)
	s, mr := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	roomID := crypto.NewID()
	at := testNow()
	msg := &models.Message{
		ID:            crypto.NewSortableID(at),
		Type:          models.MessageChat,
		Content:       "hello",
		RoomID:        roomID,
		ParticipantID: crypto.NewID(),
		SentAt:        at,
	}
	req.NoError(s.AppendMessage(ctx, msg))

	req.Equal(time.Hour, mr.TTL(roomMessagesKey(roomID)))
	req.Equal(time.Hour, mr.TTL(roomFirstSeenKey(roomID)))

	// When the keys expire the room history is gone
	mr.FastForward(2 * time.Hour)
	page, err := s.ListMessages(ctx, roomID, nil, 0, 10)
	req.NoError(err)
	req.Empty(page)
}

func TestRedisStore_FirstSeenKeepsEarliest(t *testing.T) {
	req := require.New(t)
	s, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	roomID, sender := crypto.NewID(), crypto.NewID()
	first := testNow()
	for i := 0; i < 3; i++ {
		at := first.Add(time.Duration(i) * time.Millisecond)
		req.NoError(s.AppendMessage(ctx, &models.Message{
			ID:            crypto.NewSortableID(at),
			Type:          models.MessageChat,
			Content:       "again",
			RoomID:        roomID,
			ParticipantID: sender,
			SentAt:        at,
		}))
	}

	seen, err := s.FirstSeenAt(ctx, roomID, sender)
	req.NoError(err)
	req.True(first.Equal(*seen))
}

func TestRedisStore_FirstSeenOutOfOrder(t *testing.T) {
	req := require.New(t)
	s, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	roomID, sender := crypto.NewID(), crypto.NewID()
	earlier := testNow()
	later := earlier.Add(time.Second)
	appendAt := func(at time.Time) {
		req.NoError(s.AppendMessage(ctx, &models.Message{
			ID:            crypto.NewSortableID(at),
			Type:          models.MessageChat,
			Content:       "late delivery",
			RoomID:        roomID,
			ParticipantID: sender,
			SentAt:        at,
		}))
	}

	// Given the later message is appended first
	appendAt(later)
	seen, err := s.FirstSeenAt(ctx, roomID, sender)
	req.NoError(err)
	req.True(later.Equal(*seen))

	// When the earlier one arrives
	appendAt(earlier)

	// Then the anchor moves back to it
	seen, err = s.FirstSeenAt(ctx, roomID, sender)
	req.NoError(err)
	req.True(earlier.Equal(*seen))

	appendAt(later.Add(time.Second))
	seen, err = s.FirstSeenAt(ctx, roomID, sender)
	req.NoError(err)
	req.True(earlier.Equal(*seen))
}
