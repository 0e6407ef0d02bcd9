package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters. A zero maximum disables that limit.
type Config struct {
	Prefix           string
	MaxLoginFailures int
	LoginWindow      time.Duration
	MaxRefreshes     int
	RefreshWindow    time.Duration
}

// Limiter enforces fixed-window limits on failed logins (per identifier and
// per IP) and on refresh calls (per session) using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = 15 * time.Minute
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = time.Minute
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin returns ErrRateLimited once identifier or ip has used up its
// failure budget in the current window.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, l.loginUserKey(identifier), l.config.MaxLoginFailures); err != nil {
		return err
	}
	if ip != "" {
		return l.checkCounter(ctx, l.loginIPKey(ip), l.config.MaxLoginFailures)
	}
	return nil
}

// RecordLoginFailure counts a failed login for identifier and ip.
func (l *Limiter) RecordLoginFailure(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, l.loginUserKey(identifier), l.config.LoginWindow); err != nil {
		return err
	}
	if ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginWindow); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the failure counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	keys := []string{l.loginUserKey(identifier)}
	if ip != "" {
		keys = append(keys, l.loginIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowRefresh counts one refresh for sessionID and returns ErrRateLimited
// past the budget.
func (l *Limiter) AllowRefresh(ctx context.Context, sessionID string) error {
	if l.config.MaxRefreshes <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.refreshKey(sessionID), l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshes) {
		return ErrRateLimited
	}
	return nil
}

// LoginFailures returns the failure count for identifier. Missing keys
// return zero.
func (l *Limiter) LoginFailures(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginUserKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) loginUserKey(identifier string) string {
	return l.config.Prefix + ":login:" + identifier
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.Prefix + ":login-ip:" + ip
}

func (l *Limiter) refreshKey(sessionID string) string {
	return l.config.Prefix + ":refresh:" + sessionID
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
