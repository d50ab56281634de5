package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/angar2/cola-chat-back/internal/metrics"
)

const violationsBeforeBlock = 10

// RateLimit bounds requests to one route prefix.
type RateLimit struct {
	Prefix   string
	Requests int
	Window   time.Duration
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // block an IP after repeated violations
}

// DefaultLimits covers the chat routes. Entries are matched in order,
// so longer prefixes come first.
var DefaultLimits = []RateLimit{
	{"POST /chat/rooms/", 30, time.Minute}, // access checks
	{"POST /chat/rooms", 10, time.Hour},
	{"PATCH /chat/chatters/", 20, time.Minute},
	{"GET /chat/messages/", 120, time.Minute},
	{"GET /chat/", 120, time.Minute},
	{"GET /ws", 30, time.Minute},
}

// RateLimiter limits requests per client IP over fixed Redis windows.
type RateLimiter struct {
	client    *redis.Client
	limits    []RateLimit
	blocker   *IPBlocker
	allow     allowList
	autoBlock bool
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRateLimiter creates a rate limiter enforcing limits.
func NewRateLimiter(client *redis.Client, limits []RateLimit, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	logger = logger.With().Str("component", "ratelimit").Logger()
	allow := parseAllowList(cfg.Whitelist, logger)
	if len(cfg.Whitelist) > 0 {
		logger.Info().Int("ips", len(allow.ips)).Int("cidrs", len(allow.nets)).Msg("rate limit whitelist loaded")
	}
	return &RateLimiter{
		client:    client,
		limits:    limits,
		blocker:   NewIPBlocker(client),
		allow:     allow,
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger,
		now:       time.Now,
	}
}

// allowList holds addresses exempt from limiting.
type allowList struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

func parseAllowList(entries []string, logger zerolog.Logger) allowList {
	al := allowList{ips: make(map[string]struct{})}
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			al.ips[entry] = struct{}{}
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("skipping malformed whitelist CIDR")
			continue
		}
		al.nets = append(al.nets, ipNet)
	}
	return al
}

func (al allowList) contains(addr string) bool {
	if _, ok := al.ips[addr]; ok {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range al.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP extracts the client IP from proxy headers or the connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CheckAndIncrement counts one request against key and reports whether
// it fits in the limit, how many remain and when the window resets.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := rl.now()
	bucket := now.UnixMilli() / window.Milliseconds()
	windowKey := fmt.Sprintf("%s:%d", key, bucket)

	pipe := rl.client.TxPipeline()
	countCmd := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open when Redis is unavailable.
		rl.logger.Warn().Err(err).Msg("rate limit check failed")
		return true, limit, now.Add(window)
	}

	count := int(countCmd.Val())
	remaining := max(limit-count, 0)
	resetAt := time.UnixMilli((bucket + 1) * window.Milliseconds())
	return count <= limit, remaining, resetAt
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.allow.contains(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			writeFailure(w, http.StatusForbidden, "BLOCKED", "temporarily blocked")
			return
		}

		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := "ratelimit:ip:" + ip + ":" + limit.Prefix
		allowed, remaining, resetAt := rl.CheckAndIncrement(r.Context(), key, limit.Requests, limit.Window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(max(int(resetAt.Sub(rl.now()).Seconds()), 1)))
			metrics.RateLimitHits.WithLabelValues(limit.Prefix).Inc()
			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")
			writeFailure(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	key := r.Method + " " + r.URL.Path
	for i := range rl.limits {
		if strings.HasPrefix(key, rl.limits[i].Prefix) {
			return &rl.limits[i]
		}
	}
	return nil
}

// trackViolation counts violations per IP within an hour and bans the
// IP for a day once the count reaches violationsBeforeBlock.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Hour)
	if _, err := pipe.Exec(ctx); err != nil || incr.Val() < violationsBeforeBlock {
		return
	}

	if err := rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations"); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("auto-block failed")
		return
	}
	rl.logger.Warn().Str("event", "ip_auto_blocked").Str("ip", ip).Int64("violations", incr.Val()).Msg("ip blocked after repeated violations")
}

// IPBlocker keeps temporary bans in Redis keys that expire on their own.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// IsBlocked reports whether ip is banned. Redis errors count as not banned.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Block bans ip for ttl, recording reason as the key value.
func (b *IPBlocker) Block(ctx context.Context, ip string, ttl time.Duration, reason string) error {
	return b.client.Set(ctx, blockKey(ip), reason, ttl).Err()
}

// Unblock lifts a ban early.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) error {
	return b.client.Del(ctx, blockKey(ip)).Err()
}
