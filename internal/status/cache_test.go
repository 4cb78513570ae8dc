package status

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func caches(t *testing.T) map[string]Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Cache{
		"local": NewLocal(24 * time.Hour),
		"redis": NewRedis(client, 24*time.Hour),
	}
}

func TestSetAndGet(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := c.Get(ctx, 42)
			require.NoError(t, err)
			assert.False(t, ok, "miss is not an error")

			err = c.Set(ctx, LockerStatus{
				LockerID:      42,
				State:         StateUnlocked,
				ActorUserID:   "u-1",
				TransactionID: "tx-1",
			})
			require.NoError(t, err)

			s, ok, err := c.Get(ctx, 42)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, StateUnlocked, s.State)
			assert.Equal(t, "u-1", s.ActorUserID)
			assert.Equal(t, "tx-1", s.TransactionID)
			assert.False(t, s.Timestamp.IsZero(), "Set must stamp the write time")
		})
	}
}

func TestTimestampAdvancesOnEveryWrite(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.Set(ctx, LockerStatus{LockerID: 7, State: StateUnlocked}))
			first, _, err := c.Get(ctx, 7)
			require.NoError(t, err)

			time.Sleep(5 * time.Millisecond)
			require.NoError(t, c.Set(ctx, LockerStatus{LockerID: 7, State: StateLocked}))
			second, _, err := c.Get(ctx, 7)
			require.NoError(t, err)

			assert.Equal(t, StateLocked, second.State, "last writer wins")
			assert.True(t, second.Timestamp.After(first.Timestamp))
		})
	}
}

func TestGetMultiple(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.Set(ctx, LockerStatus{LockerID: 1, State: StateLocked}))
			require.NoError(t, c.Set(ctx, LockerStatus{LockerID: 3, State: StateMaintenance}))

			got, err := c.GetMultiple(ctx, []int64{1, 2, 3})
			require.NoError(t, err)
			assert.Len(t, got, 2)
			assert.Equal(t, StateLocked, got[1].State)
			assert.Equal(t, StateMaintenance, got[3].State)
			_, present := got[2]
			assert.False(t, present)
		})
	}
}

func TestIsOnline(t *testing.T) {
	fresh := LockerStatus{Timestamp: time.Now().Add(-10 * time.Second)}
	stale := LockerStatus{Timestamp: time.Now().Add(-90 * time.Second)}

	assert.True(t, IsOnline(fresh, time.Minute))
	assert.False(t, IsOnline(stale, time.Minute))
	assert.False(t, IsOnline(LockerStatus{}, time.Minute), "zero timestamp is offline")
}
