package dedupe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_AcquireOnce(t *testing.T) {
	c := New(100)
	defer c.Close()
	ctx := context.Background()

	ok, err := c.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_ExpiredKeyIsReacquirable(t *testing.T) {
	c := New(100)
	defer c.Close()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	ok, _ := c.Acquire(context.Background(), "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = c.Acquire(context.Background(), "k", time.Second)
	assert.True(t, ok)
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(2)
	defer c.Close()
	ctx := context.Background()

	c.Acquire(ctx, "a", time.Minute)
	c.Acquire(ctx, "b", time.Minute)
	c.Acquire(ctx, "c", time.Minute)

	assert.Equal(t, 2, c.Len())
	ok, _ := c.Acquire(ctx, "a", time.Minute)
	assert.True(t, ok, "oldest key should have been evicted")
}

func TestCache_ConcurrentAcquireSingleWinner(t *testing.T) {
	c := New(100)
	defer c.Close()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := c.Acquire(context.Background(), MessageLockKey("m-1"), time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestDedupKey(t *testing.T) {
	a := DedupKey("+919876543210", "pizza", 1_000_500, 1000)
	b := DedupKey("+919876543210", "pizza", 1_000_999, 1000)
	c := DedupKey("+919876543210", "pizza", 1_001_000, 1000)
	d := DedupKey("+919876543210", "burger", 1_000_500, 1000)

	assert.Equal(t, a, b, "same window must collide")
	assert.NotEqual(t, a, c, "next window must differ")
	assert.NotEqual(t, a, d, "different text must differ")
	assert.Contains(t, a, fmt.Sprintf(":%d", 1000))
	assert.Equal(t, "lock:msg:abc", MessageLockKey("abc"))
}
