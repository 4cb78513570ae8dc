package coordinator

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"locker-access-backend/internal/model"
)

// Directory looks up registered lockers.
type Directory interface {
	Find(ctx context.Context, lockerID int64) (*model.Locker, error)
}

type gormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates a database-backed locker directory.
func NewGormDirectory(db *gorm.DB) Directory {
	return &gormDirectory{db: db}
}

func (d *gormDirectory) Find(ctx context.Context, lockerID int64) (*model.Locker, error) {
	var locker model.Locker
	err := d.db.WithContext(ctx).First(&locker, lockerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLockerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &locker, nil
}
