package model

import "time"

// TransactionAction is the hardware command that was attempted.
type TransactionAction string

const (
	ActionUnlock TransactionAction = "unlock"
	ActionLock   TransactionAction = "lock"
)

// TransactionMethod records how the attempt was authorized.
type TransactionMethod string

const (
	MethodQRToken    TransactionMethod = "qr_token"
	MethodPermission TransactionMethod = "permission"
	MethodManual     TransactionMethod = "manual"
	MethodForced     TransactionMethod = "forced"
	MethodAutoRelock TransactionMethod = "auto_relock"
)

// TransactionStatus is the outcome of a dispatch attempt.
type TransactionStatus string

const (
	TxSuccess TransactionStatus = "success"
	TxFailed  TransactionStatus = "failed"
)

// Transaction is the durable audit record of one hardware dispatch attempt.
// Rows are append-only; exactly one row exists per attempt, success or
// failure. Auto-relock rows carry ParentID correlating them to the unlock
// they follow up.
type Transaction struct {
	ID               string            `gorm:"primaryKey;size:36"`
	ParentID         *string           `gorm:"size:36;index"`
	LockerID         int64             `gorm:"index;not null"`
	UserID           string            `gorm:"size:64;index"`
	Action           TransactionAction `gorm:"size:16;not null"`
	Method           TransactionMethod `gorm:"size:16;not null"`
	DurationSeconds  int
	Status           TransactionStatus `gorm:"size:16;not null;index"`
	HardwareResponse string            `gorm:"size:1024"`
	ErrorMessage     string            `gorm:"size:1024"`
	CreatedAt        time.Time         `gorm:"not null;index"`
}
