package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoginThrottle counts failed login attempts per username in Redis.
// When Redis is unreachable the throttle fails open: login availability
// is worth more than brute-force slowdown.
type LoginThrottle struct {
	client *redis.Client
	logger *zap.Logger
	limit  int
	window time.Duration
}

// NewLoginThrottle builds a throttle. A nil client disables throttling.
func NewLoginThrottle(client *redis.Client, logger *zap.Logger, limit int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{client: client, logger: logger, limit: limit, window: window}
}

var _ LoginLimiter = (*LoginThrottle)(nil)

// Allowed reports whether the username is still under the failure limit.
func (t *LoginThrottle) Allowed(ctx context.Context, username string) bool {
	if t == nil || t.client == nil || t.limit <= 0 {
		return true
	}
	count, err := t.client.Get(ctx, t.key(username)).Int()
	if err != nil {
		if err != redis.Nil {
			t.logger.Warn("login throttle unavailable", zap.Error(err))
		}
		return true
	}
	return count < t.limit
}

// RecordFailure increments the failure counter and refreshes the window.
func (t *LoginThrottle) RecordFailure(ctx context.Context, username string) {
	if t == nil || t.client == nil || t.limit <= 0 {
		return
	}
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, t.key(username))
	pipe.Expire(ctx, t.key(username), t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("login throttle unavailable", zap.Error(err))
	}
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, username string) {
	if t == nil || t.client == nil {
		return
	}
	if err := t.client.Del(ctx, t.key(username)).Err(); err != nil {
		t.logger.Warn("login throttle unavailable", zap.Error(err))
	}
}

func (t *LoginThrottle) key(username string) string {
	return "login_attempts:" + username
}
