package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"locker-access-backend/internal/model"
)

// Record describes one dispatch attempt to append to the ledger.
type Record struct {
	ID               string
	ParentID         string
	LockerID         int64
	UserID           string
	Action           model.TransactionAction
	Method           model.TransactionMethod
	DurationSeconds  int
	Status           model.TransactionStatus
	HardwareResponse string
	ErrorMessage     string
}

// Ledger is the append-only audit trail of hardware dispatch attempts. It is
// the sole source of audit truth, independent of the status cache.
type Ledger interface {
	// Append writes exactly one transaction row for a dispatch attempt.
	Append(ctx context.Context, rec Record) (*model.Transaction, error)

	// LastForLocker returns the most recent transaction for a locker, or
	// gorm.ErrRecordNotFound if none exists.
	LastForLocker(ctx context.Context, lockerID int64) (*model.Transaction, error)

	// ListForLocker returns recent transactions for a locker, newest first.
	ListForLocker(ctx context.Context, lockerID int64, limit int) ([]model.Transaction, error)
}

// gormLedger implements Ledger using GORM.
type gormLedger struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

// NewGormLedger creates a new GORM-backed ledger.
func NewGormLedger(db *gorm.DB) Ledger {
	return &gormLedger{db: db, nowFunc: time.Now}
}

func (l *gormLedger) Append(ctx context.Context, rec Record) (*model.Transaction, error) {
	tx := model.Transaction{
		ID:               rec.ID,
		LockerID:         rec.LockerID,
		UserID:           rec.UserID,
		Action:           rec.Action,
		Method:           rec.Method,
		DurationSeconds:  rec.DurationSeconds,
		Status:           rec.Status,
		HardwareResponse: rec.HardwareResponse,
		ErrorMessage:     rec.ErrorMessage,
		CreatedAt:        l.nowFunc().UTC(),
	}
	if rec.ParentID != "" {
		parent := rec.ParentID
		tx.ParentID = &parent
	}

	if err := l.db.WithContext(ctx).Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("failed to append transaction for locker %d: %w", rec.LockerID, err)
	}
	return &tx, nil
}

func (l *gormLedger) LastForLocker(ctx context.Context, lockerID int64) (*model.Transaction, error) {
	var tx model.Transaction
	err := l.db.WithContext(ctx).
		Where("locker_id = ?", lockerID).
		Order("created_at DESC").
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (l *gormLedger) ListForLocker(ctx context.Context, lockerID int64, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txs []model.Transaction
	err := l.db.WithContext(ctx).
		Where("locker_id = ?", lockerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for locker %d: %w", lockerID, err)
	}
	return txs, nil
}
