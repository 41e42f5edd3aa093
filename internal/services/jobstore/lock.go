package jobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
)

// ErrLocked is returned when a job is already locked.
var ErrLocked = errors.New("job is locked")

// MemoryLocker keeps job locks in process. It is used when no Redis is
// configured and in tests.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// Lock takes the lock of jobID without waiting.
func (l *MemoryLocker) Lock(_ context.Context, jobID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[jobID]; busy {
		return nil, ErrLocked
	}
	l.held[jobID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, jobID)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the lock key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker keeps job locks in Redis with SET NX PX, so several server
// instances sharing a media root do not edit the same job at once.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

// NewRedisLocker connects to the Redis server at url and checks it with a
// ping. ttl bounds how long a crashed holder can keep a job locked.
func NewRedisLocker(url string, ttl time.Duration, log *logger.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisLocker(client, ttl, log), nil
}

func newRedisLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: "pdftools:lock:", log: log.WithComponent("locks")}
}

// Lock takes the lock of jobID without waiting.
func (l *RedisLocker) Lock(ctx context.Context, jobID string) (func(), error) {
	key := l.prefix + jobID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return l.unlocker(jobID, key, token), nil
}

// unlocker releases the lock once. A failed release leaves the job locked
// until the TTL expires.
func (l *RedisLocker) unlocker(jobID, key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				l.log.WithJob(jobID).Error().Err(err).Dur("ttl", l.ttl).Msg("failed to release job lock")
			}
		})
	}
}

// Ping checks the Redis connection.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
