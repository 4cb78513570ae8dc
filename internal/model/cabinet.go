package model

import "time"

// Cabinet represents a bank of lockers installed at one location.
type Cabinet struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:128;not null"`
	Building  string    `gorm:"size:128"`
	Floor     int
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Lockers []Locker `gorm:"foreignKey:CabinetID"`
}
