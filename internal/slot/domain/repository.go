package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository operations run inside the caller's transaction so a reservation
// and its booking insert commit or roll back as one unit.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TimeSlot, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TimeSlot, error)
	ListAvailable(ctx context.Context, db *gorm.DB, offeringID snowflake.ID, from time.Time) ([]TimeSlot, error)

	// Reserve increments the capacity counter iff the slot still has room and
	// its range lies inside an open availability window. Returns
	// ErrSlotUnavailable with no side effects otherwise.
	Reserve(ctx context.Context, tx *gorm.DB, id snowflake.ID) error

	// Release decrements the counter, flooring at zero.
	Release(ctx context.Context, tx *gorm.DB, id snowflake.ID) error

	// ReleaseOrphans resets counters that disagree with the number of live
	// bookings referencing the slot. Returns the number of corrected slots.
	ReleaseOrphans(ctx context.Context, db *gorm.DB, limit int) (int, error)
}
