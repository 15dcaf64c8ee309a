package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// LoginThrottle counts failed logins per identifier. Locked reports whether
// the identifier has exhausted its failures for the current window.
type LoginThrottle interface {
	Locked(ctx context.Context, key string) (bool, error)
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// MemoryThrottle keeps one token bucket per identifier. Each failure spends a
// token; tokens refill at maxFailures per window.
type MemoryThrottle struct {
	mu          sync.Mutex
	buckets     map[string]*rate.Limiter
	maxFailures int
	window      time.Duration
	now         func() time.Time
}

func NewMemoryThrottle(maxFailures int, window time.Duration, now func() time.Time) *MemoryThrottle {
	if now == nil {
		now = time.Now
	}
	return &MemoryThrottle{
		buckets:     make(map[string]*rate.Limiter),
		maxFailures: maxFailures,
		window:      window,
		now:         now,
	}
}

func (t *MemoryThrottle) bucket(key string) *rate.Limiter {
	b, ok := t.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(t.window/time.Duration(t.maxFailures)), t.maxFailures)
		t.buckets[key] = b
	}
	return b
}

func (t *MemoryThrottle) Locked(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[key]
	if !ok {
		return false, nil
	}
	return b.TokensAt(t.now()) < 1, nil
}

func (t *MemoryThrottle) Fail(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bucket(key).AllowN(t.now(), 1)
	return nil
}

func (t *MemoryThrottle) Reset(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buckets, key)
	return nil
}

// RedisThrottle shares the failure count across replicas with a fixed
// window per identifier.
type RedisThrottle struct {
	client      redis.Cmdable
	maxFailures int
	window      time.Duration
	prefix      string
}

func NewRedisThrottle(client redis.Cmdable, maxFailures int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, maxFailures: maxFailures, window: window, prefix: "carego:login_failures:"}
}

func (t *RedisThrottle) Locked(ctx context.Context, key string) (bool, error) {
	n, err := t.client.Get(ctx, t.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n >= t.maxFailures, nil
}

func (t *RedisThrottle) Fail(ctx context.Context, key string) error {
	n, err := t.client.Incr(ctx, t.prefix+key).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		return t.client.Expire(ctx, t.prefix+key, t.window).Err()
	}
	return nil
}

func (t *RedisThrottle) Reset(ctx context.Context, key string) error {
	return t.client.Del(ctx, t.prefix+key).Err()
}
