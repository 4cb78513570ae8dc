package model

import "time"

// Locker represents a single lockable compartment.
type Locker struct {
	ID          int64  `gorm:"primaryKey"`
	CabinetID   int64  `gorm:"index;not null"`
	DisplayName string `gorm:"size:256;not null"`
	HardwareID  string `gorm:"size:64"`
	Seq         int
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Associations
	Cabinet Cabinet `gorm:"constraint:OnDelete:CASCADE"`
}
