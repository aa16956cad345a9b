package leader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"

	"github.com/go-redis/redis/v8"
)

var refreshScript = redis.NewScript(`
    if redis.call("GET", KEYS[1]) == ARGV[1] then
        return redis.call("PEXPIRE", KEYS[1], ARGV[2])
    else
        return 0
    end
`)

var releaseScript = redis.NewScript(`
    if redis.call("GET", KEYS[1]) == ARGV[1] then
        return redis.call("DEL", KEYS[1])
    else
        return 0
    end
`)

// RedisInstanceLock is a TTL lock in redis that keeps a second aggregator from
// consuming the same group. The holder refreshes it every ttl/3.
type RedisInstanceLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    logger.Logger

	mutex sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

func NewRedisInstanceLock(client *redis.Client, group string, ttl time.Duration, log logger.Logger) *RedisInstanceLock {
	return &RedisInstanceLock{
		client: client,
		key:    "bid_aggregator_lock:" + group,
		ttl:    ttl,
		log:    log,
	}
}

// Acquire takes the lock for owner and fails with domain.ErrLockHeld if the key
// exists. Owners should be unique per process. Calling Acquire again on the lock
// that already holds the key for owner succeeds.
func (r *RedisInstanceLock) Acquire(ctx context.Context, owner string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stop != nil {
		holder, err := r.holder(ctx)
		if err != nil {
			return err
		}
		if holder != owner {
			return fmt.Errorf("%w: %s held by %q", domain.ErrLockHeld, r.key, holder)
		}
		return nil
	}

	ok, err := r.client.SetNX(ctx, r.key, owner, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", r.key, err)
	}
	if !ok {
		holder, err := r.holder(ctx)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s held by %q", domain.ErrLockHeld, r.key, holder)
	}

	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.maintain(owner, r.stop, r.done)

	r.log.Info("Acquired instance lock", "key", r.key, "owner", owner)
	return nil
}

func (r *RedisInstanceLock) holder(ctx context.Context) (string, error) {
	holder, err := r.client.Get(ctx, r.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read %s: %w", r.key, err)
	}
	return holder, nil
}

// Release stops refreshing and deletes the key if owner still holds it.
func (r *RedisInstanceLock) Release(ctx context.Context, owner string) error {
	r.mutex.Lock()
	if r.stop != nil {
		close(r.stop)
		<-r.done
		r.stop, r.done = nil, nil
	}
	r.mutex.Unlock()

	if err := releaseScript.Run(ctx, r.client, []string{r.key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", r.key, err)
	}
	r.log.Info("Released instance lock", "key", r.key, "owner", owner)
	return nil
}

func (r *RedisInstanceLock) maintain(owner string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		result, err := refreshScript.Run(ctx, r.client, []string{r.key}, owner, r.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil {
			r.log.Error("Failed to refresh instance lock", "key", r.key, "error", err)
			continue
		}
		if result == 0 {
			r.log.Error("Instance lock lost", "key", r.key, "owner", owner)
			return
		}
	}
}
