package router

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/shared/response"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig bounds requests per client over a fixed window. A client
// that exceeds Limit is refused for Block.
type RateLimitConfig struct {
	Limit     int
	Window    time.Duration
	Block     time.Duration
	KeyPrefix string
}

// RateLimiter counts requests per client IP in redis. It fails open when
// redis is unavailable. Mount it after middleware.RealIP.
func RateLimiter(rdb redis.UniversalClient, cfg RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := cfg.KeyPrefix + ":ip:" + clientIP(r)
			blockKey := key + ":blocked"

			if blocked, _ := rdb.Get(ctx, blockKey).Result(); blocked == "1" {
				ttl, _ := rdb.TTL(ctx, blockKey).Result()
				w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
				response.ErrorWithCode(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too Many Requests. Try again in "+ttl.String())
				return
			}

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				rdb.Expire(ctx, key, cfg.Window)
			}

			if count > int64(cfg.Limit) {
				rdb.Set(ctx, blockKey, "1", cfg.Block)
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Block.Seconds())))
				response.ErrorWithCode(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too Many Requests. Blocked for "+cfg.Block.String())
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(cfg.Limit-int(count)))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP drops the port RealIP leaves on RemoteAddr when no proxy header
// was present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
