package redislock_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/memstore"
	"github.com/AntonStoeckl/library-circulation-go/circulation/redislock"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("CIRCULATION_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}

	return client
}

func newLocker(t *testing.T, options ...redislock.Option) *redislock.Locker {
	t.Helper()

	prefix := "circulation-test:" + uuid.NewString() + ":"
	locker, err := redislock.New(redisClient(t), append([]redislock.Option{redislock.WithKeyPrefix(prefix)}, options...)...)
	require.NoError(t, err)

	return locker
}

func Test_New_RejectsInvalidOptions(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })

	testCases := []struct {
		name   string
		option redislock.Option
	}{
		{name: "empty key prefix", option: redislock.WithKeyPrefix("")},
		{name: "zero ttl", option: redislock.WithTTL(0)},
		{name: "negative max wait", option: redislock.WithMaxWait(-time.Second)},
		{name: "zero retry interval", option: redislock.WithRetryInterval(0)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := redislock.New(client, tc.option)

			assert.ErrorIs(t, err, redislock.ErrInvalidOption)
		})
	}
}

func Test_New_RejectsNilClient(t *testing.T) {
	_, err := redislock.New(nil)

	assert.ErrorIs(t, err, circulation.ErrNilDatabaseConnection)
}

func Test_Lock_IsExclusivePerISBN(t *testing.T) {
	// arrange
	ctx := context.Background()
	locker := newLocker(t, redislock.WithMaxWait(100*time.Millisecond))
	unlock, err := locker.Lock(ctx, "978-1")
	require.NoError(t, err)

	// act
	_, secondErr := locker.Lock(ctx, "978-1")
	otherUnlock, otherErr := locker.Lock(ctx, "978-2")

	// assert
	assert.ErrorIs(t, secondErr, circulation.ErrLockNotAcquired)
	require.NoError(t, otherErr)
	assert.NoError(t, otherUnlock(ctx))
	assert.NoError(t, unlock(ctx))

	again, err := locker.Lock(ctx, "978-1")
	require.NoError(t, err)
	assert.NoError(t, again(ctx))
}

func Test_Lock_WaitsForRelease(t *testing.T) {
	// arrange
	ctx := context.Background()
	locker := newLocker(t, redislock.WithMaxWait(2*time.Second), redislock.WithRetryInterval(10*time.Millisecond))
	unlock, err := locker.Lock(ctx, "978-1")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = unlock(ctx)
	}()

	// act
	waited, err := locker.Lock(ctx, "978-1")

	// assert
	require.NoError(t, err)
	assert.NoError(t, waited(ctx))
}

func Test_Unlock_ReportsExpiredLock(t *testing.T) {
	// arrange
	ctx := context.Background()
	locker := newLocker(t, redislock.WithTTL(50*time.Millisecond))
	unlock, err := locker.Lock(ctx, "978-1")
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	// act
	err = unlock(ctx)

	// assert
	assert.ErrorIs(t, err, redislock.ErrLockLost)
}

func Test_Lock_StopsWaitingWhenContextIsCanceled(t *testing.T) {
	// arrange
	locker := newLocker(t, redislock.WithMaxWait(5*time.Second))
	unlock, err := locker.Lock(context.Background(), "978-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = unlock(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// act
	_, err = locker.Lock(ctx, "978-1")

	// assert
	assert.ErrorIs(t, err, circulation.ErrLockNotAcquired)
}

func Test_Lock_SerializesEngineIssues(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memstore.New()
	engine, err := circulation.NewEngine(store, circulation.WithBookLocker(newLocker(t)))
	require.NoError(t, err)
	_, err = engine.AddBook(ctx, circulation.NewBook{ISBN: "978-1", Title: "Title", Author: "Author"})
	require.NoError(t, err)

	var successes atomic.Int32
	var wg sync.WaitGroup

	// act
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, issueErr := engine.Issue(ctx, "978-1", circulation.IssueRequest{
				Mobile: "0170000001", Borrower: "Ann", DueDate: "2024-04-01",
			})
			if issueErr == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	// assert
	assert.Equal(t, int32(1), successes.Load())
	txs, err := store.ListTransactionsByISBN(ctx, "978-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
