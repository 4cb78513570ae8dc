package model

import "time"

// Role classifies a user's privilege level.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User holds the minimum identity needed for authorization decisions.
// Account management itself lives in a separate service.
type User struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"size:128"`
	Role      Role      `gorm:"size:16;not null;default:member"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// LockerGrant gives a user standing permission to unlock a locker without a
// one-time token.
type LockerGrant struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"size:64;index:idx_grant_user_locker,unique;not null"`
	LockerID  int64     `gorm:"index:idx_grant_user_locker,unique;not null"`
	GrantedBy string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"not null"`
}
