package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

// LoginLimiter tracks failed login attempts per client IP in Redis and
// locks an IP out after repeated failures. Redis being unreachable fails
// open: a broken limiter must not lock every user out of the site.
type LoginLimiter struct {
	client *redis.Client
}

// NewLoginLimiter constructs a LoginLimiter.
func NewLoginLimiter(client *redis.Client) *LoginLimiter {
	return &LoginLimiter{client: client}
}

// Check reports how long the IP remains locked out. Zero means the IP may
// attempt a login.
func (l *LoginLimiter) Check(ctx context.Context, ip string) (time.Duration, error) {
	ttl, err := l.client.TTL(ctx, lockKey(ip)).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 {
		return ttl, nil
	}
	return 0, nil
}

// RecordFailure counts a failed attempt and locks the IP once the limit is
// reached. It returns the number of attempts remaining before lockout.
func (l *LoginLimiter) RecordFailure(ctx context.Context, ip string) (int, error) {
	key := attemptsKey(ip)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, loginWindow).Err(); err != nil {
			return 0, err
		}
	}
	if count >= maxLoginAttempts {
		pipe := l.client.TxPipeline()
		pipe.Set(ctx, lockKey(ip), "1", lockDuration)
		pipe.Del(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return maxLoginAttempts - int(count), nil
}

// Reset clears attempt state after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, ip string) error {
	return l.client.Del(ctx, attemptsKey(ip), lockKey(ip)).Err()
}

func attemptsKey(ip string) string {
	return "login_attempts:" + ip
}

func lockKey(ip string) string {
	return "login_lock:" + ip
}
