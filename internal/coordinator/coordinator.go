package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"locker-access-backend/internal/events"
	"locker-access-backend/internal/hardware"
	"locker-access-backend/internal/ledger"
	"locker-access-backend/internal/model"
	"locker-access-backend/internal/permission"
	"locker-access-backend/internal/relock"
	"locker-access-backend/internal/status"
	"locker-access-backend/internal/token"
)

// Policy holds the dispatch policy knobs.
type Policy struct {
	MinDuration      int // seconds
	DefaultDuration  int
	MaxDuration      int // for members
	MaxAdminDuration int
	TokenTTL         time.Duration
	RelockMargin     time.Duration
}

// DurationBounds returns the [min, max] duration for a role.
func (p Policy) DurationBounds(role model.Role) (int, int) {
	if role == model.RoleAdmin {
		return p.MinDuration, p.MaxAdminDuration
	}
	return p.MinDuration, p.MaxDuration
}

// UnlockRequest describes one unlock attempt. Exactly one authorization
// branch applies: TokenID (qr token), Force (admin), or the permission
// resolver for UserID.
type UnlockRequest struct {
	LockerID        int64
	UserID          string
	TokenID         string
	DurationSeconds int
	Force           bool
}

// LockRequest describes one manual lock attempt.
type LockRequest struct {
	LockerID int64
	UserID   string
	Reason   string
	Force    bool
}

// Result summarizes a completed operation for the caller.
type Result struct {
	TransactionID   string                  `json:"transactionId"`
	LockerID        int64                   `json:"lockerId"`
	Action          model.TransactionAction `json:"action"`
	Method          model.TransactionMethod `json:"method"`
	DurationSeconds int                     `json:"durationSeconds,omitempty"`
	RelockAt        *time.Time              `json:"relockAt,omitempty"`
	Token           *token.Payload          `json:"token,omitempty"`
}

// Coordinator orchestrates authorization, hardware dispatch, cache update,
// ledger write, event emission and relock scheduling for a single
// unlock/lock request. Every collaborator is injected, so each one can be
// substituted in tests.
type Coordinator struct {
	directory  Directory
	tokens     token.Store
	perms      permission.Resolver
	cache      status.Cache
	dispatcher hardware.Dispatcher
	ledger     ledger.Ledger
	publisher  events.Publisher
	scheduler  relock.Scheduler
	policy     Policy
	logger     *log.Logger
	nowFunc    func() time.Time
}

// New wires a coordinator from its collaborators.
func New(
	directory Directory,
	tokens token.Store,
	perms permission.Resolver,
	cache status.Cache,
	dispatcher hardware.Dispatcher,
	ldg ledger.Ledger,
	publisher events.Publisher,
	scheduler relock.Scheduler,
	policy Policy,
	logger *log.Logger,
) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		directory:  directory,
		tokens:     tokens,
		perms:      perms,
		cache:      cache,
		dispatcher: dispatcher,
		ledger:     ldg,
		publisher:  publisher,
		scheduler:  scheduler,
		policy:     policy,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// IssueToken generates a one-time access token for (user, locker). The
// requester must already hold unlock permission; duration bounds are
// enforced at issue time so a consumed token never needs re-validation.
func (c *Coordinator) IssueToken(ctx context.Context, userID string, lockerID int64, durationSeconds int) (*token.Payload, error) {
	locker, err := c.directory.Find(ctx, lockerID)
	if err != nil {
		return nil, err
	}

	decision, err := c.perms.Resolve(ctx, userID, lockerID)
	if err != nil {
		return nil, fmt.Errorf("resolve permission: %w", err)
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, decision.Reason)
	}

	if durationSeconds == 0 {
		durationSeconds = c.policy.DefaultDuration
	}
	min, max := c.policy.DurationBounds(decision.Role)
	if durationSeconds < min || durationSeconds > max {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidDuration, durationSeconds, min, max)
	}

	p := token.Payload{
		SubjectUserID:   userID,
		LockerID:        locker.ID,
		CabinetID:       locker.CabinetID,
		Action:          string(model.ActionUnlock),
		DurationSeconds: durationSeconds,
		IssuedBy:        userID,
	}
	id, err := c.tokens.Generate(ctx, p, c.policy.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	p.ID = id
	p.ValidUntil = c.nowFunc().UTC().Add(c.policy.TokenTTL)
	return &p, nil
}

// PeekToken reads a token without consuming it, for UI previews and for
// resolving the locker a scanned token points at.
func (c *Coordinator) PeekToken(ctx context.Context, tokenID string) (*token.Payload, error) {
	p, err := c.tokens.Peek(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return p, nil
}

// Unlock runs the full unlock state machine:
// Requested -> Authorizing -> Dispatching -> {Succeeded, Failed}.
func (c *Coordinator) Unlock(ctx context.Context, req UnlockRequest) (*Result, error) {
	locker, err := c.directory.Find(ctx, req.LockerID)
	if err != nil {
		return nil, err
	}

	if err := c.checkAvailability(ctx, locker.ID, req.Force); err != nil {
		return nil, err
	}

	// Authorizing. The three branches are mutually exclusive; all failures
	// short-circuit with no ledger row since nothing was dispatched.
	var (
		method   model.TransactionMethod
		userID   = req.UserID
		duration = req.DurationSeconds
		payload  *token.Payload
	)
	switch {
	case req.Force:
		decision, err := c.perms.Resolve(ctx, req.UserID, locker.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve permission: %w", err)
		}
		if decision.Role != model.RoleAdmin {
			return nil, ErrForbidden
		}
		method = model.MethodForced
		if duration == 0 {
			duration = c.policy.DefaultDuration
		}
		min, max := c.policy.DurationBounds(model.RoleAdmin)
		if duration < min || duration > max {
			return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidDuration, duration, min, max)
		}

	case req.TokenID != "":
		p, err := c.tokens.Consume(ctx, req.TokenID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		if p.LockerID != locker.ID {
			// Token is burned either way; it was spent on the wrong locker.
			return nil, fmt.Errorf("%w: token bound to another locker", ErrTokenInvalid)
		}
		payload = p
		userID = p.SubjectUserID
		method = model.MethodQRToken
		// Bounds were enforced at issue time.
		duration = p.DurationSeconds

	default:
		decision, err := c.perms.Resolve(ctx, req.UserID, locker.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve permission: %w", err)
		}
		if !decision.Allowed {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, decision.Reason)
		}
		method = model.MethodPermission
		if duration == 0 {
			duration = c.policy.DefaultDuration
		}
		min, max := c.policy.DurationBounds(decision.Role)
		if duration < min || duration > max {
			return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidDuration, duration, min, max)
		}
	}

	// Dispatching.
	txID := uuid.NewString()
	res, dispatchErr := c.dispatcher.Unlock(ctx, hardware.UnlockCommand{
		LockerID:        locker.ID,
		CabinetID:       locker.CabinetID,
		DurationSeconds: duration,
		TransactionID:   txID,
		UserID:          userID,
		Method:          string(method),
	})

	rec := ledger.Record{
		ID:              txID,
		LockerID:        locker.ID,
		UserID:          userID,
		Action:          model.ActionUnlock,
		Method:          method,
		DurationSeconds: duration,
	}

	if dispatchErr != nil {
		// Failed: one ledger row, no cache mutation, error to the caller.
		rec.Status = model.TxFailed
		rec.ErrorMessage = dispatchErr.Error()
		if _, lerr := c.ledger.Append(ctx, rec); lerr != nil {
			c.logger.Printf("failed to record failed unlock of locker %d: %v", locker.ID, lerr)
		}
		c.publishFailure(ctx, locker.ID, userID, txID, dispatchErr)
		return nil, dispatchErr
	}

	// Succeeded: cache, ledger, event, relock schedule. The cache write is
	// last-writer-wins; the ledger row is the audit truth regardless.
	if err := c.cache.Set(ctx, status.LockerStatus{
		LockerID:      locker.ID,
		State:         status.StateUnlocked,
		ActorUserID:   userID,
		TransactionID: txID,
	}); err != nil {
		c.logger.Printf("failed to update status cache for locker %d: %v", locker.ID, err)
	}

	rec.Status = model.TxSuccess
	if res != nil {
		rec.HardwareResponse = string(res.Response)
	}
	if _, lerr := c.ledger.Append(ctx, rec); lerr != nil {
		c.logger.Printf("failed to record unlock of locker %d: %v", locker.ID, lerr)
	}

	now := c.nowFunc().UTC()
	c.publish(ctx, events.Event{
		Action:          string(model.ActionUnlock),
		LockerID:        locker.ID,
		UserID:          userID,
		TransactionID:   txID,
		Timestamp:       now,
		DurationSeconds: duration,
	})

	relockAt := now.Add(time.Duration(duration)*time.Second + c.policy.RelockMargin)
	c.scheduler.Schedule(txID, locker.ID, locker.CabinetID, relockAt)

	return &Result{
		TransactionID:   txID,
		LockerID:        locker.ID,
		Action:          model.ActionUnlock,
		Method:          method,
		DurationSeconds: duration,
		RelockAt:        &relockAt,
		Token:           payload,
	}, nil
}

// Lock runs the manual lock flow. A successful lock cancels any pending
// auto-relock for the locker so the safety command is not sent twice.
func (c *Coordinator) Lock(ctx context.Context, req LockRequest) (*Result, error) {
	locker, err := c.directory.Find(ctx, req.LockerID)
	if err != nil {
		return nil, err
	}

	method := model.MethodManual
	decision, err := c.perms.Resolve(ctx, req.UserID, locker.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve permission: %w", err)
	}
	if req.Force {
		if decision.Role != model.RoleAdmin {
			return nil, ErrForbidden
		}
		method = model.MethodForced
	} else if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, decision.Reason)
	}

	txID := uuid.NewString()
	res, dispatchErr := c.dispatcher.Lock(ctx, hardware.LockCommand{
		LockerID:      locker.ID,
		CabinetID:     locker.CabinetID,
		TransactionID: txID,
		UserID:        req.UserID,
		Method:        string(method),
		Forced:        req.Force,
	})

	rec := ledger.Record{
		ID:       txID,
		LockerID: locker.ID,
		UserID:   req.UserID,
		Action:   model.ActionLock,
		Method:   method,
	}

	if dispatchErr != nil {
		rec.Status = model.TxFailed
		rec.ErrorMessage = dispatchErr.Error()
		if _, lerr := c.ledger.Append(ctx, rec); lerr != nil {
			c.logger.Printf("failed to record failed lock of locker %d: %v", locker.ID, lerr)
		}
		c.publishFailure(ctx, locker.ID, req.UserID, txID, dispatchErr)
		return nil, dispatchErr
	}

	// The locker is confirmed shut; the pending safety relock would be a
	// redundant, confusing duplicate.
	c.scheduler.CancelLocker(locker.ID)

	if err := c.cache.Set(ctx, status.LockerStatus{
		LockerID:      locker.ID,
		State:         status.StateLocked,
		ActorUserID:   req.UserID,
		TransactionID: txID,
	}); err != nil {
		c.logger.Printf("failed to update status cache for locker %d: %v", locker.ID, err)
	}

	rec.Status = model.TxSuccess
	if res != nil {
		rec.HardwareResponse = string(res.Response)
	}
	if _, lerr := c.ledger.Append(ctx, rec); lerr != nil {
		c.logger.Printf("failed to record lock of locker %d: %v", locker.ID, lerr)
	}

	c.publish(ctx, events.Event{
		Action:        string(model.ActionLock),
		LockerID:      locker.ID,
		UserID:        req.UserID,
		TransactionID: txID,
		Timestamp:     c.nowFunc().UTC(),
	})

	return &Result{
		TransactionID: txID,
		LockerID:      locker.ID,
		Action:        model.ActionLock,
		Method:        method,
	}, nil
}

// checkAvailability rejects unlocks against lockers whose cached status says
// maintenance or offline. A cache miss is not a rejection: the cache may
// always be absent or stale, and the hardware call is the real arbiter.
func (c *Coordinator) checkAvailability(ctx context.Context, lockerID int64, force bool) error {
	if force {
		return nil
	}
	s, ok, err := c.cache.Get(ctx, lockerID)
	if err != nil {
		c.logger.Printf("status cache read for locker %d failed: %v", lockerID, err)
		return nil
	}
	if !ok {
		return nil
	}
	if s.State == status.StateMaintenance || s.State == status.StateOffline {
		return fmt.Errorf("%w: locker is in %s", ErrLockerUnavailable, s.State)
	}
	return nil
}

func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.logger.Printf("failed to publish %s event for locker %d: %v", ev.Action, ev.LockerID, err)
	}
}

func (c *Coordinator) publishFailure(ctx context.Context, lockerID int64, userID, txID string, cause error) {
	if c.publisher == nil {
		return
	}
	ev := events.Event{
		Action:        "hardware_failure",
		LockerID:      lockerID,
		UserID:        userID,
		TransactionID: txID,
		Timestamp:     c.nowFunc().UTC(),
		Detail:        cause.Error(),
	}
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.logger.Printf("failed to publish hardware failure event for locker %d: %v", lockerID, err)
	}
}
