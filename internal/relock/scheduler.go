package relock

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"locker-access-backend/internal/events"
	"locker-access-backend/internal/hardware"
	"locker-access-backend/internal/ledger"
	"locker-access-backend/internal/model"
	"locker-access-backend/internal/status"
)

// Scheduler schedules a deferred lock command as a safety net after every
// successful unlock, so a locker never stays open just because the client
// went silent.
type Scheduler interface {
	// Schedule arms a relock for the unlock transaction txID at fireAt.
	Schedule(txID string, lockerID, cabinetID int64, fireAt time.Time)

	// Cancel disarms the relock for txID, if still pending.
	Cancel(txID string)

	// CancelLocker disarms every pending relock for a locker. Used when a
	// manual lock lands first, so the safety command is not sent twice.
	CancelLocker(lockerID int64)
}

type pendingRelock struct {
	timer     *time.Timer
	lockerID  int64
	cabinetID int64
}

// TimerScheduler implements Scheduler with in-process timers. Timers do not
// survive a restart; the ledger still records every dispatch, so a lost
// relock is visible in the audit trail.
type TimerScheduler struct {
	dispatcher hardware.Dispatcher
	cache      status.Cache
	ledger     ledger.Ledger
	publisher  events.Publisher
	logger     *log.Logger

	mu      sync.Mutex
	pending map[string]*pendingRelock
	stopped bool
}

// NewTimerScheduler returns a scheduler that relocks through dispatcher and
// records outcomes in cache and ledger.
func NewTimerScheduler(d hardware.Dispatcher, c status.Cache, l ledger.Ledger, p events.Publisher, logger *log.Logger) *TimerScheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &TimerScheduler{
		dispatcher: d,
		cache:      c,
		ledger:     l,
		publisher:  p,
		logger:     logger,
		pending:    make(map[string]*pendingRelock),
	}
}

func (s *TimerScheduler) Schedule(txID string, lockerID, cabinetID int64, fireAt time.Time) {
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.pending[txID]; ok {
		old.timer.Stop()
	}
	p := &pendingRelock{lockerID: lockerID, cabinetID: cabinetID}
	p.timer = time.AfterFunc(delay, func() { s.fire(txID) })
	s.pending[txID] = p
}

func (s *TimerScheduler) Cancel(txID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[txID]; ok {
		p.timer.Stop()
		delete(s.pending, txID)
	}
}

func (s *TimerScheduler) CancelLocker(lockerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for txID, p := range s.pending {
		if p.lockerID == lockerID {
			p.timer.Stop()
			delete(s.pending, txID)
		}
	}
}

// Stop disarms all pending relocks. Called on shutdown.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for txID, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, txID)
	}
}

// PendingCount reports how many relocks are armed.
func (s *TimerScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// fire dispatches the safety lock. Best-effort: a failed relock is logged
// and recorded but never retried.
func (s *TimerScheduler) fire(parentTxID string) {
	s.mu.Lock()
	p, ok := s.pending[parentTxID]
	if ok {
		delete(s.pending, parentTxID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	relockTxID := uuid.NewString()
	res, err := s.dispatcher.Lock(ctx, hardware.LockCommand{
		LockerID:      p.lockerID,
		CabinetID:     p.cabinetID,
		TransactionID: relockTxID,
		Method:        string(model.MethodAutoRelock),
		Forced:        true,
		AutoClose:     true,
	})

	rec := ledger.Record{
		ID:       relockTxID,
		ParentID: parentTxID,
		LockerID: p.lockerID,
		Action:   model.ActionLock,
		Method:   model.MethodAutoRelock,
	}

	if err != nil {
		s.logger.Printf("auto-relock for locker %d (tx %s) failed: %v", p.lockerID, parentTxID, err)
		rec.Status = model.TxFailed
		rec.ErrorMessage = err.Error()
		if _, lerr := s.ledger.Append(ctx, rec); lerr != nil {
			s.logger.Printf("failed to record auto-relock failure for locker %d: %v", p.lockerID, lerr)
		}
		return
	}

	rec.Status = model.TxSuccess
	if res != nil {
		rec.HardwareResponse = string(res.Response)
	}
	if _, lerr := s.ledger.Append(ctx, rec); lerr != nil {
		s.logger.Printf("failed to record auto-relock for locker %d: %v", p.lockerID, lerr)
	}

	if err := s.cache.Set(ctx, status.LockerStatus{
		LockerID:      p.lockerID,
		State:         status.StateLocked,
		TransactionID: relockTxID,
	}); err != nil {
		s.logger.Printf("failed to update status cache after auto-relock of locker %d: %v", p.lockerID, err)
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, events.Event{
			Action:        "lock",
			LockerID:      p.lockerID,
			TransactionID: relockTxID,
			Timestamp:     time.Now().UTC(),
		})
	}
}
