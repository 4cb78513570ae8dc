package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locker-access-backend/internal/events"
	"locker-access-backend/internal/hardware"
	"locker-access-backend/internal/ledger"
	"locker-access-backend/internal/model"
	"locker-access-backend/internal/permission"
	"locker-access-backend/internal/status"
	"locker-access-backend/internal/token"
)

// --- fakes ---

type fakeDirectory struct {
	lockers map[int64]*model.Locker
}

func (f *fakeDirectory) Find(_ context.Context, id int64) (*model.Locker, error) {
	l, ok := f.lockers[id]
	if !ok {
		return nil, ErrLockerNotFound
	}
	return l, nil
}

type fakeResolver struct {
	decisions map[string]permission.Decision
}

func (f *fakeResolver) Resolve(_ context.Context, userID string, _ int64) (permission.Decision, error) {
	if d, ok := f.decisions[userID]; ok {
		return d, nil
	}
	return permission.Decision{Allowed: false, Role: model.RoleMember, Reason: "unknown user"}, nil
}

type fakeDispatcher struct {
	mu        sync.Mutex
	unlocks   []hardware.UnlockCommand
	locks     []hardware.LockCommand
	unlockErr error
	lockErr   error
}

func (f *fakeDispatcher) Unlock(_ context.Context, cmd hardware.UnlockCommand) (*hardware.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocks = append(f.unlocks, cmd)
	if f.unlockErr != nil {
		return nil, f.unlockErr
	}
	return &hardware.Result{Success: true}, nil
}

func (f *fakeDispatcher) Lock(_ context.Context, cmd hardware.LockCommand) (*hardware.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append(f.locks, cmd)
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	return &hardware.Result{Success: true}, nil
}

type fakeLedger struct {
	mu   sync.Mutex
	recs []ledger.Record
}

func (f *fakeLedger) Append(_ context.Context, rec ledger.Record) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return &model.Transaction{ID: rec.ID}, nil
}

func (f *fakeLedger) LastForLocker(context.Context, int64) (*model.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) ListForLocker(context.Context, int64, int) ([]model.Transaction, error) {
	return nil, nil
}

type scheduled struct {
	txID      string
	lockerID  int64
	cabinetID int64
	fireAt    time.Time
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []scheduled
	cancelled []int64
}

func (f *fakeScheduler) Schedule(txID string, lockerID, cabinetID int64, fireAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduled{txID, lockerID, cabinetID, fireAt})
}

func (f *fakeScheduler) Cancel(string) {}

func (f *fakeScheduler) CancelLocker(lockerID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, lockerID)
}

// --- harness ---

type harness struct {
	coord      *Coordinator
	tokens     token.Store
	cache      status.Cache
	dispatcher *fakeDispatcher
	ledger     *fakeLedger
	scheduler  *fakeScheduler
	bus        *events.Bus
}

func testPolicy() Policy {
	return Policy{
		MinDuration:      5,
		DefaultDuration:  30,
		MaxDuration:      300,
		MaxAdminDuration: 600,
		TokenTTL:         time.Minute,
		RelockMargin:     5 * time.Second,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tokens:     token.NewInMemory(),
		cache:      status.NewLocal(time.Hour),
		dispatcher: &fakeDispatcher{},
		ledger:     &fakeLedger{},
		scheduler:  &fakeScheduler{},
		bus:        events.NewBus(),
	}
	dir := &fakeDirectory{lockers: map[int64]*model.Locker{
		42: {ID: 42, CabinetID: 7, DisplayName: "B1-42"},
		43: {ID: 43, CabinetID: 7, DisplayName: "B1-43"},
	}}
	resolver := &fakeResolver{decisions: map[string]permission.Decision{
		"member-1": {Allowed: true, Role: model.RoleMember},
		"admin-1":  {Allowed: true, Role: model.RoleAdmin},
		"denied-1": {Allowed: false, Role: model.RoleMember, Reason: "no grant for locker"},
	}}
	h.coord = New(dir, h.tokens, resolver, h.cache, h.dispatcher, h.ledger, h.bus, h.scheduler, testPolicy(), nil)
	return h
}

func (h *harness) issue(t *testing.T, userID string, lockerID int64, duration int) string {
	t.Helper()
	p, err := h.coord.IssueToken(context.Background(), userID, lockerID, duration)
	require.NoError(t, err)
	return p.ID
}

// --- tests ---

func TestUnlockUnknownLocker(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Unlock(context.Background(), UnlockRequest{LockerID: 999, UserID: "member-1"})
	assert.ErrorIs(t, err, ErrLockerNotFound)
	assert.Empty(t, h.ledger.recs)
}

func TestUnlockUnavailableLocker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.cache.Set(ctx, status.LockerStatus{LockerID: 42, State: status.StateMaintenance}))

	_, err := h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, UserID: "member-1"})
	assert.ErrorIs(t, err, ErrLockerUnavailable)
	assert.Empty(t, h.dispatcher.unlocks, "no dispatch may happen")
	assert.Empty(t, h.ledger.recs)

	// An admin with force bypasses the availability gate.
	_, err = h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, UserID: "admin-1", Force: true})
	assert.NoError(t, err)
}

func TestUnlockOfflineLocker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.cache.Set(ctx, status.LockerStatus{LockerID: 42, State: status.StateOffline}))

	_, err := h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, UserID: "member-1"})
	assert.ErrorIs(t, err, ErrLockerUnavailable)
}

func TestUnlockInvalidToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Unlock(context.Background(), UnlockRequest{LockerID: 42, TokenID: "bogus"})
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.Empty(t, h.dispatcher.unlocks)
	assert.Empty(t, h.ledger.recs, "rejected authorization writes no ledger row")
}

func TestUnlockTokenBoundToAnotherLocker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.issue(t, "member-1", 43, 30)

	_, err := h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, TokenID: id})
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// The token was spent on the attempt.
	_, err = h.tokens.Peek(ctx, id)
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestUnlockPermissionDenied(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Unlock(context.Background(), UnlockRequest{LockerID: 42, UserID: "denied-1"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Empty(t, h.ledger.recs)
}

func TestForceRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Unlock(context.Background(), UnlockRequest{LockerID: 42, UserID: "member-1", Force: true})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDurationBounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		userID   string
		duration int
		wantErr  bool
	}{
		{"below min", "member-1", 4, true},
		{"at min", "member-1", 5, false},
		{"at member max", "member-1", 300, false},
		{"above member max", "member-1", 301, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, UserID: tc.userID, DurationSeconds: tc.duration})
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDuration)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	// Admins get the wider bound via force.
	_, err := h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, UserID: "admin-1", Force: true, DurationSeconds: 600})
	assert.NoError(t, err)
	_, err = h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, UserID: "admin-1", Force: true, DurationSeconds: 601})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestUnlockSuccessViaToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.bus.Subscribe()
	id := h.issue(t, "member-1", 42, 45)

	before := time.Now()
	res, err := h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, TokenID: id})
	require.NoError(t, err)

	assert.Equal(t, model.MethodQRToken, res.Method)
	assert.Equal(t, 45, res.DurationSeconds)
	require.NotNil(t, res.Token)
	assert.Equal(t, "member-1", res.Token.SubjectUserID)

	// Dispatch carried the consumed token's identity and duration.
	require.Len(t, h.dispatcher.unlocks, 1)
	cmd := h.dispatcher.unlocks[0]
	assert.Equal(t, int64(42), cmd.LockerID)
	assert.Equal(t, int64(7), cmd.CabinetID)
	assert.Equal(t, 45, cmd.DurationSeconds)
	assert.Equal(t, "member-1", cmd.UserID)

	// Cache shows unlocked with the transaction id.
	st, ok, err := h.cache.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, status.StateUnlocked, st.State)
	assert.Equal(t, res.TransactionID, st.TransactionID)

	// Exactly one success row.
	require.Len(t, h.ledger.recs, 1)
	rec := h.ledger.recs[0]
	assert.Equal(t, model.TxSuccess, rec.Status)
	assert.Equal(t, model.MethodQRToken, rec.Method)
	assert.Equal(t, res.TransactionID, rec.ID)

	// Event published.
	select {
	case ev := <-sub:
		assert.Equal(t, "unlock", ev.Action)
		assert.Equal(t, res.TransactionID, ev.TransactionID)
		assert.Equal(t, 45, ev.DurationSeconds)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	// Relock armed at now + duration + margin.
	require.Len(t, h.scheduler.scheduled, 1)
	s := h.scheduler.scheduled[0]
	assert.Equal(t, res.TransactionID, s.txID)
	wantFire := before.Add(45*time.Second + 5*time.Second)
	assert.WithinDuration(t, wantFire, s.fireAt, 2*time.Second)

	// The token is spent: a second consume fails.
	_, err = h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, TokenID: id})
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestUnlockHardwareFailureIsolatesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.dispatcher.unlockErr = hardware.ErrTimeout

	// Pre-existing cache state must survive the failed dispatch untouched.
	require.NoError(t, h.cache.Set(ctx, status.LockerStatus{LockerID: 42, State: status.StateLocked}))
	pre, _, err := h.cache.Get(ctx, 42)
	require.NoError(t, err)

	_, err = h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, UserID: "member-1", DurationSeconds: 30})
	assert.ErrorIs(t, err, hardware.ErrTimeout)

	post, ok, err := h.cache.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pre, post, "failed dispatch must not mutate the status cache")

	// Exactly one failed row; nothing scheduled.
	require.Len(t, h.ledger.recs, 1)
	assert.Equal(t, model.TxFailed, h.ledger.recs[0].Status)
	assert.Contains(t, h.ledger.recs[0].ErrorMessage, "hardware timeout")
	assert.Empty(t, h.scheduler.scheduled)
}

func TestUnlockHardwareFailurePublishesAlert(t *testing.T) {
	h := newHarness(t)
	sub := h.bus.Subscribe()
	h.dispatcher.unlockErr = hardware.ErrCommunication

	_, err := h.coord.Unlock(context.Background(), UnlockRequest{LockerID: 42, UserID: "member-1", DurationSeconds: 30})
	assert.ErrorIs(t, err, hardware.ErrCommunication)

	select {
	case ev := <-sub:
		assert.Equal(t, "hardware_failure", ev.Action)
		assert.Equal(t, int64(42), ev.LockerID)
	case <-time.After(time.Second):
		t.Fatal("no failure event published")
	}
}

func TestManualLockCancelsRelock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, UserID: "member-1", DurationSeconds: 45})
	require.NoError(t, err)
	require.Len(t, h.scheduler.scheduled, 1)

	res, err := h.coord.Lock(ctx, LockRequest{LockerID: 42, UserID: "member-1", Reason: "done early"})
	require.NoError(t, err)
	assert.Equal(t, model.MethodManual, res.Method)
	assert.Equal(t, []int64{42}, h.scheduler.cancelled)

	st, ok, _ := h.cache.Get(ctx, 42)
	require.True(t, ok)
	assert.Equal(t, status.StateLocked, st.State)

	// One unlock row plus one lock row.
	require.Len(t, h.ledger.recs, 2)
	assert.Equal(t, model.ActionLock, h.ledger.recs[1].Action)
}

func TestFailedLockKeepsRelockArmed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Unlock(ctx, UnlockRequest{LockerID: 42, UserID: "member-1", DurationSeconds: 45})
	require.NoError(t, err)

	h.dispatcher.lockErr = hardware.ErrCommunication
	_, err = h.coord.Lock(ctx, LockRequest{LockerID: 42, UserID: "member-1"})
	assert.ErrorIs(t, err, hardware.ErrCommunication)

	assert.Empty(t, h.scheduler.cancelled, "a failed lock must not disarm the safety relock")
	require.Len(t, h.ledger.recs, 2)
	assert.Equal(t, model.TxFailed, h.ledger.recs[1].Status)
}

func TestIssueToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("bounds enforced at issue time", func(t *testing.T) {
		_, err := h.coord.IssueToken(ctx, "member-1", 42, 301)
		assert.ErrorIs(t, err, ErrInvalidDuration)
		_, err = h.coord.IssueToken(ctx, "member-1", 42, 4)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	})

	t.Run("permission required", func(t *testing.T) {
		_, err := h.coord.IssueToken(ctx, "denied-1", 42, 30)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("unknown locker", func(t *testing.T) {
		_, err := h.coord.IssueToken(ctx, "member-1", 999, 30)
		assert.ErrorIs(t, err, ErrLockerNotFound)
	})

	t.Run("default duration applied", func(t *testing.T) {
		p, err := h.coord.IssueToken(ctx, "member-1", 42, 0)
		require.NoError(t, err)
		assert.Equal(t, 30, p.DurationSeconds)
		assert.NotEmpty(t, p.ID)
		assert.False(t, p.ValidUntil.IsZero())
	})
}
