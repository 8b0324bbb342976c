// Package redislock provides a circulation.BookLocker on Redis.
//
// A lock is a key per ISBN set with SET NX and a TTL. The value is a random token,
// so only the holder can release the lock. A holder that crashes releases it by expiry.
package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

var (
	// ErrLockLost is returned by Unlock when the lock expired or was taken over before the release.
	ErrLockLost = errors.New("lock expired before it was released")

	// ErrLockBackendFailed wraps errors of the Redis client.
	ErrLockBackendFailed = errors.New("lock backend failed")

	// ErrInvalidOption is returned for non-positive durations or an empty key prefix.
	ErrInvalidOption = errors.New("invalid lock option")
)

// releaseScript deletes the key only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a circulation.BookLocker backed by Redis.
type Locker struct {
	client        redis.UniversalClient
	keyPrefix     string
	ttl           time.Duration
	maxWait       time.Duration
	retryInterval time.Duration
}

// Option configures a Locker.
type Option func(*Locker) error

// WithKeyPrefix sets the prefix of the lock keys. Default: "circulation:lock:".
func WithKeyPrefix(prefix string) Option {
	return func(l *Locker) error {
		if prefix == "" {
			return ErrInvalidOption
		}

		l.keyPrefix = prefix

		return nil
	}
}

// WithTTL sets how long a lock is held at most. Default: 10s.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) error {
		if ttl <= 0 {
			return ErrInvalidOption
		}

		l.ttl = ttl

		return nil
	}
}

// WithMaxWait sets how long Lock waits for a held lock. Default: 2s.
func WithMaxWait(maxWait time.Duration) Option {
	return func(l *Locker) error {
		if maxWait <= 0 {
			return ErrInvalidOption
		}

		l.maxWait = maxWait

		return nil
	}
}

// WithRetryInterval sets the pause between acquisition attempts. Default: 25ms.
func WithRetryInterval(interval time.Duration) Option {
	return func(l *Locker) error {
		if interval <= 0 {
			return ErrInvalidOption
		}

		l.retryInterval = interval

		return nil
	}
}

// New creates a Locker on the given client.
func New(client redis.UniversalClient, options ...Option) (*Locker, error) {
	if client == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	locker := &Locker{
		client:        client,
		keyPrefix:     "circulation:lock:",
		ttl:           10 * time.Second,
		maxWait:       2 * time.Second,
		retryInterval: 25 * time.Millisecond,
	}

	for _, option := range options {
		if err := option(locker); err != nil {
			return nil, err
		}
	}

	return locker, nil
}

// Lock implements circulation.BookLocker.
// It returns circulation.ErrLockNotAcquired if the lock is still held after the max wait or when ctx is done.
func (l *Locker) Lock(ctx context.Context, isbn string) (circulation.Unlock, error) {
	key := l.keyPrefix + isbn
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		switch {
		case err != nil && waitCtx.Err() != nil:
			return nil, errors.Join(circulation.ErrLockNotAcquired, waitCtx.Err())
		case err != nil:
			return nil, errors.Join(ErrLockBackendFailed, err)
		case acquired:
			return l.unlockFunc(key, token), nil
		}

		select {
		case <-waitCtx.Done():
			return nil, errors.Join(circulation.ErrLockNotAcquired, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlockFunc(key, token string) circulation.Unlock {
	return func(ctx context.Context) error {
		released, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
		if err != nil {
			return errors.Join(ErrLockBackendFailed, err)
		}

		if released == 0 {
			return ErrLockLost
		}

		return nil
	}
}

var _ circulation.BookLocker = (*Locker)(nil)
