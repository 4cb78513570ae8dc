package permission

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"locker-access-backend/internal/model"
)

// Decision is the outcome of a capability resolution for (user, locker).
type Decision struct {
	Allowed bool
	Role    model.Role
	Reason  string
}

// Resolver answers whether a user may unlock a locker without a one-time
// token, and what role the user holds. Consumed uniformly by the coordinator
// instead of per-endpoint checks.
type Resolver interface {
	Resolve(ctx context.Context, userID string, lockerID int64) (Decision, error)
}

// gormResolver resolves against the users and locker_grants tables. Admins
// pass implicitly; members need a standing grant.
type gormResolver struct {
	db *gorm.DB
}

// NewGormResolver creates a database-backed resolver.
func NewGormResolver(db *gorm.DB) Resolver {
	return &gormResolver{db: db}
}

func (r *gormResolver) Resolve(ctx context.Context, userID string, lockerID int64) (Decision, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{Allowed: false, Role: model.RoleMember, Reason: "unknown user"}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("resolve user %s: %w", userID, err)
	}

	if user.Role == model.RoleAdmin {
		return Decision{Allowed: true, Role: model.RoleAdmin}, nil
	}

	var count int64
	err = r.db.WithContext(ctx).
		Model(&model.LockerGrant{}).
		Where("user_id = ? AND locker_id = ?", userID, lockerID).
		Count(&count).Error
	if err != nil {
		return Decision{}, fmt.Errorf("resolve grant for user %s locker %d: %w", userID, lockerID, err)
	}

	if count == 0 {
		return Decision{Allowed: false, Role: user.Role, Reason: "no grant for locker"}, nil
	}
	return Decision{Allowed: true, Role: user.Role}, nil
}
