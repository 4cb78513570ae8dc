package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis implements Cache on a Redis backend so that replicated coordinators
// share one view. Values are JSON; last SET wins.
type Redis struct {
	client    *redis.Client
	retention time.Duration
	nowFunc   func() time.Time
}

// NewRedis returns a Redis-backed status cache.
func NewRedis(client *redis.Client, retention time.Duration) *Redis {
	return &Redis{client: client, retention: retention, nowFunc: time.Now}
}

func (r *Redis) Get(ctx context.Context, lockerID int64) (LockerStatus, bool, error) {
	raw, err := r.client.Get(ctx, key(lockerID)).Result()
	if err == redis.Nil {
		return LockerStatus{}, false, nil
	}
	if err != nil {
		return LockerStatus{}, false, fmt.Errorf("status get: %w", err)
	}
	var s LockerStatus
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return LockerStatus{}, false, fmt.Errorf("status decode: %w", err)
	}
	return s, true, nil
}

func (r *Redis) GetMultiple(ctx context.Context, lockerIDs []int64) (map[int64]LockerStatus, error) {
	if len(lockerIDs) == 0 {
		return map[int64]LockerStatus{}, nil
	}
	keys := make([]string, len(lockerIDs))
	for i, id := range lockerIDs {
		keys[i] = key(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("status mget: %w", err)
	}
	out := make(map[int64]LockerStatus, len(lockerIDs))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var s LockerStatus
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue
		}
		out[lockerIDs[i]] = s
	}
	return out, nil
}

func (r *Redis) Set(ctx context.Context, s LockerStatus) error {
	s.Timestamp = r.nowFunc().UTC()
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("status encode: %w", err)
	}
	if err := r.client.Set(ctx, key(s.LockerID), raw, r.retention).Err(); err != nil {
		return fmt.Errorf("status set: %w", err)
	}
	return nil
}
