package status

import (
	"context"
	"time"
)

// State enumerates the last known condition of a locker.
type State string

const (
	StateAvailable   State = "available"
	StateReserved    State = "reserved"
	StateUnlocking   State = "unlocking"
	StateUnlocked    State = "unlocked"
	StateLocked      State = "locked"
	StateMaintenance State = "maintenance"
	StateOffline     State = "offline"
	StateError       State = "error"
)

// LockerStatus is the cached view of one locker. It is not the source of
// truth: entries may be absent, stale, or diverge from the ledger, and
// callers must tolerate all three.
type LockerStatus struct {
	LockerID      int64     `json:"lockerId"`
	State         State     `json:"state"`
	ActorUserID   string    `json:"actorUserId,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Cache is the ephemeral fast-read view of locker states. Set stamps the
// current time on every write; last writer wins.
type Cache interface {
	Get(ctx context.Context, lockerID int64) (LockerStatus, bool, error)
	GetMultiple(ctx context.Context, lockerIDs []int64) (map[int64]LockerStatus, error)
	Set(ctx context.Context, s LockerStatus) error
}

// IsOnline reports whether a cached status is fresh enough to trust.
func IsOnline(s LockerStatus, threshold time.Duration) bool {
	return time.Since(s.Timestamp) < threshold
}
