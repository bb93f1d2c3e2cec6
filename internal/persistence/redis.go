package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/config"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// releaseScript deletes the lock key only when it still holds our token,
// so an expired lock reacquired by another instance is never released.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// SweepLock is a best-effort distributed mutex for scheduled sweeps. It
// keeps concurrent instances from running the same sweep at once; the TTL
// bounds how long a crashed holder can block the next run.
type SweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewSweepLock builds a lock handle for the named sweep.
func (r *Redis) NewSweepLock(name string, ttl time.Duration) *SweepLock {
	var client *redis.Client
	if r != nil {
		client = r.Client
	}
	return &SweepLock{
		client: client,
		key:    "helpdesk:sweep-lock:" + name,
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock. Without a Redis client it reports
// success so single-instance deployments run unlocked.
func (l *SweepLock) Acquire(ctx context.Context) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release frees the lock if this handle still owns it.
func (l *SweepLock) Release(ctx context.Context) error {
	if l.client == nil || l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
}
