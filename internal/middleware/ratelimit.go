package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/iliyamo/booking-engine/internal/config"
)

var limiterScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// decision is the outcome of one limiter check.
type decision struct {
	allowed   bool
	remaining int64
	retryMs   int64
}

// localLimiter keeps one token bucket per key in process memory. It is
// used when Redis is not configured or a script call fails.
type localLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
	return &localLimiter{
		perSec:  rate.Limit(cfg.PerSecond()),
		burst:   cfg.Capacity,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *localLimiter) take(key string, now time.Time) decision {
	l.mu.Lock()
	lim, ok := l.buckets[key]
	if !ok {
		lim = rate.NewLimiter(l.perSec, l.burst)
		l.buckets[key] = lim
	}
	l.mu.Unlock()

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return decision{retryMs: delay.Milliseconds()}
	}
	return decision{allowed: true, remaining: int64(lim.TokensAt(now))}
}

// NewTokenBucket limits requests per key (see buildRateKey) with a token
// bucket of cfg.Capacity tokens refilled by cfg.RefillTokens every
// cfg.RefillInterval. Buckets live in Redis so every API instance shares
// them; without Redis each process keeps its own.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *logrus.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	local := newLocalLimiter(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			now := time.Now()

			d, err := redisTake(c, rdb, cfg, key, now)
			if err != nil {
				if rdb != nil {
					log.WithError(err).WithField("key", key).Warn("ratelimit: redis unavailable, using local bucket")
				}
				d = local.take(key, now)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))

			if !d.allowed {
				secs := int(math.Ceil(float64(d.retryMs) / 1000.0))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					log.WithFields(logrus.Fields{"key": key, "retry_ms": d.retryMs}).Info("ratelimit: blocked")
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

var errNoRedis = fmt.Errorf("redis not configured")

func redisTake(c echo.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string, now time.Time) (decision, error) {
	if rdb == nil {
		return decision{}, errNoRedis
	}
	args := []interface{}{
		now.UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL / time.Second),
	}
	vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
	if err != nil {
		return decision{}, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return decision{}, fmt.Errorf("unexpected script result %#v", vals)
	}
	return decision{
		allowed:   asInt64(arr[0]) == 1,
		remaining: asInt64(arr[1]),
		retryMs:   asInt64(arr[2]),
	}, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := currentUserID(c)
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
