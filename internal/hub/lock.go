package hub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockKeyPrefix = "setup:lock:"

var ErrLockHeld = errors.New("setup lock is held by another process")

// Locker guards a match against concurrent setups across processes.
type Locker interface {
	Acquire(ctx context.Context, matchID int) (Lease, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, log: logger}
}

func lockKey(matchID int) string { return lockKeyPrefix + strconv.Itoa(matchID) }

// Acquire takes the lock and keeps extending it until the lease is
// released.
func (l *RedisLocker) Acquire(ctx context.Context, matchID int) (Lease, error) {
	key := lockKey(matchID)
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	leaseCtx, cancel := context.WithCancel(context.Background())
	lease := &redisLease{locker: l, key: key, owner: owner, stop: cancel, done: make(chan struct{})}
	go lease.refresh(leaseCtx)
	return lease, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	owner  string
	stop   context.CancelFunc
	done   chan struct{}
}

func (r *redisLease) refresh(ctx context.Context) {
	defer close(r.done)
	t := time.NewTicker(r.locker.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := refreshScript.Run(ctx, r.locker.client, []string{r.key}, r.owner, r.locker.ttl.Milliseconds()).Int()
			if err != nil && ctx.Err() == nil {
				r.locker.log.Warn("refreshing setup lock failed", zap.String("key", r.key), zap.Error(err))
				continue
			}
			if n == 0 && ctx.Err() == nil {
				r.locker.log.Warn("setup lock lost", zap.String("key", r.key))
				return
			}
		}
	}
}

func (r *redisLease) Release(ctx context.Context) error {
	r.stop()
	<-r.done
	return releaseScript.Run(ctx, r.locker.client, []string{r.key}, r.owner).Err()
}
