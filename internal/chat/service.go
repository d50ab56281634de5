// Package chat implements rooms, participants, the message log and the
// room session coordinator on top of the store and presence packages.
package chat

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/angar2/cola-chat-back/internal/presence"
	"github.com/angar2/cola-chat-back/internal/store"
)

// Config holds the tunables of the chat service.
type Config struct {
	ExpiryDays       int
	LeaveGracePeriod time.Duration
	PageSize         int
	BcryptCost       int
	// IOTimeout bounds the store calls made when a leave timer fires.
	IOTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ExpiryDays:       7,
		LeaveGracePeriod: 5 * time.Second,
		PageSize:         30,
		BcryptCost:       10,
		IOTimeout:        10 * time.Second,
	}
}

const keyLockStripes = 64

// Service is the chat core. It is safe for concurrent use.
type Service struct {
	rooms        store.RoomStore
	participants store.ParticipantStore
	memberships  store.MembershipStore
	messages     store.MessageLog
	gateway      Gateway

	presence *presence.Tracker
	leaves   *presence.Debouncer

	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	// keyLocks serialize the durable transitions of one (room, participant).
	keyLocks [keyLockStripes]sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPresence injects the presence tracker and leave debouncer.
func WithPresence(tracker *presence.Tracker, leaves *presence.Debouncer) Option {
	return func(s *Service) {
		s.presence = tracker
		s.leaves = leaves
	}
}

// NewService creates the chat service. Rooms and participants live in
// data; messages go to the given log, which may be data itself.
func NewService(data store.DataStore, messages store.MessageLog, gateway Gateway, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.ExpiryDays <= 0 {
		cfg.ExpiryDays = def.ExpiryDays
	}
	if cfg.LeaveGracePeriod <= 0 {
		cfg.LeaveGracePeriod = def.LeaveGracePeriod
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = def.IOTimeout
	}

	s := &Service{
		rooms:        data,
		participants: data,
		memberships:  data,
		messages:     messages,
		gateway:      gateway,
		cfg:          cfg,
		logger:       logger.With().Str("component", "chat").Logger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.presence == nil {
		s.presence = presence.NewTracker()
	}
	if s.leaves == nil {
		s.leaves = presence.NewDebouncer()
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Close cancels pending leave timers. Participants in their grace period
// stay active.
func (s *Service) Close() {
	s.leaves.Close()
}

func (s *Service) lockKey(key presence.Key) func() {
	h := fnv.New32a()
	h.Write([]byte(key.RoomID))
	h.Write([]byte{0})
	h.Write([]byte(key.ParticipantID))
	mu := &s.keyLocks[h.Sum32()%keyLockStripes]
	mu.Lock()
	return mu.Unlock
}

// uniqueID draws random ids until exists reports one unused.
func (s *Service) uniqueID(ctx context.Context, newID func() string, exists func(context.Context, string) (bool, error)) (string, error) {
	for {
		id := newID()
		taken, err := exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check id: %w", err)
		}
		if !taken {
			return id, nil
		}
	}
}

// timestamp returns the current time as stored: UTC, microsecond precision.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
