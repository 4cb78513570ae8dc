package status

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// Local implements Cache on patrickmn/go-cache for single-process
// deployments. Entries linger well past the online threshold so that a stale
// entry is still readable; staleness is judged by Timestamp, not eviction.
type Local struct {
	store   *cache.Cache
	nowFunc func() time.Time
}

// NewLocal returns an in-process status cache. retention bounds how long a
// stale entry is kept at all.
func NewLocal(retention time.Duration) *Local {
	return &Local{
		store:   cache.New(retention, 2*retention),
		nowFunc: time.Now,
	}
}

// key is shared with the redis backend so both store under the same names.
func key(lockerID int64) string {
	return "locker:" + strconv.FormatInt(lockerID, 10)
}

func (l *Local) Get(_ context.Context, lockerID int64) (LockerStatus, bool, error) {
	v, found := l.store.Get(key(lockerID))
	if !found {
		return LockerStatus{}, false, nil
	}
	return v.(LockerStatus), true, nil
}

func (l *Local) GetMultiple(ctx context.Context, lockerIDs []int64) (map[int64]LockerStatus, error) {
	out := make(map[int64]LockerStatus, len(lockerIDs))
	for _, id := range lockerIDs {
		if s, ok, _ := l.Get(ctx, id); ok {
			out[id] = s
		}
	}
	return out, nil
}

func (l *Local) Set(_ context.Context, s LockerStatus) error {
	s.Timestamp = l.nowFunc().UTC()
	l.store.SetDefault(key(s.LockerID), s)
	return nil
}
