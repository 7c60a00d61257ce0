package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vevsa/books-auth/pkg/clientip"
)

const (
	RateLimitKeyPrefix = "ratelimit:"
	BlockedIPKeyPrefix = "blocked_ip:"
)

// RedisRateLimiter is a fixed-window counter per client IP shared by every
// instance through Redis. A client that exceeds Max within Window is
// blocked for BlockFor. Redis failures fail open.
type RedisRateLimiter struct {
	Client   redis.Cmdable
	Scope    string
	Window   time.Duration
	Max      int
	BlockFor time.Duration
	Log      *slog.Logger
}

// OTPSendLimiter caps code dispatches at 5 per 10 minutes per IP.
func OTPSendLimiter(client redis.Cmdable, log *slog.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		Client:   client,
		Scope:    "otp",
		Window:   10 * time.Minute,
		Max:      5,
		BlockFor: 30 * time.Minute,
		Log:      log,
	}
}

// GlobalRedisLimiter allows 300 requests per minute per IP and blocks
// offenders for 5 minutes.
func GlobalRedisLimiter(client redis.Cmdable, log *slog.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		Client:   client,
		Scope:    "global",
		Window:   time.Minute,
		Max:      300,
		BlockFor: 5 * time.Minute,
		Log:      log,
	}
}

func (l *RedisRateLimiter) counterKey(ip string) string {
	return RateLimitKeyPrefix + l.Scope + ":" + ip
}

func (l *RedisRateLimiter) blockedKey(ip string) string {
	return BlockedIPKeyPrefix + l.Scope + ":" + ip
}

// hit increments the window counter and reports the new count. The first
// hit in a window starts its expiry.
func (l *RedisRateLimiter) hit(ctx context.Context, ip string) (int64, error) {
	key := l.counterKey(ip)
	count, err := l.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.Client.Expire(ctx, key, l.Window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (l *RedisRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		ip := clientip.RealClientIP(r)

		blocked, err := l.Client.Exists(ctx, l.blockedKey(ip)).Result()
		if err == nil && blocked > 0 {
			tooManyRequests(w, "Your IP has been temporarily blocked due to excessive requests. Please try again later.")
			return
		}

		count, err := l.hit(ctx, ip)
		if err != nil {
			l.Log.Warn("rate limiter unavailable, allowing request", "scope", l.Scope, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(l.Max) {
			if err := l.Client.Set(ctx, l.blockedKey(ip), "1", l.BlockFor).Err(); err != nil {
				l.Log.Warn("failed to block ip", "scope", l.Scope, "error", err)
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(l.BlockFor.Seconds())))
			tooManyRequests(w, "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Max))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(l.Max)-count, 10))
		next.ServeHTTP(w, r)
	})
}

// Unblock lifts a block for ip in this limiter's scope.
func (l *RedisRateLimiter) Unblock(ctx context.Context, ip string) error {
	return l.Client.Del(ctx, l.blockedKey(ip), l.counterKey(ip)).Err()
}
