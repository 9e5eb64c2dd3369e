package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	slotdomain "github.com/mentorlane/mentorlane/internal/slot/domain"
	"github.com/mentorlane/mentorlane/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() slotdomain.Repository {
	return &repo{}
}

const slotColumns = `id, offering_id, expert_id, start_at, end_at, max_bookings, current_bookings, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*slotdomain.TimeSlot, error) {
	var item slotdomain.TimeSlot
	err := conn.WithContext(ctx).Raw(
		`SELECT `+slotColumns+` FROM time_slots WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*slotdomain.TimeSlot, error) {
	var item slotdomain.TimeSlot
	err := conn.WithContext(ctx).Raw(
		`SELECT `+slotColumns+` FROM time_slots WHERE id = ?`+db.ForUpdate(conn),
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListAvailable(ctx context.Context, conn *gorm.DB, offeringID snowflake.ID, from time.Time) ([]slotdomain.TimeSlot, error) {
	var items []slotdomain.TimeSlot
	err := conn.WithContext(ctx).Raw(
		`SELECT `+slotColumns+`
		 FROM time_slots
		 WHERE offering_id = ?
		   AND start_at >= ?
		   AND current_bookings < max_bookings
		 ORDER BY start_at ASC`,
		offeringID, from,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Reserve is the single write that hands out capacity. The WHERE clause
// carries every precondition so concurrent callers race on the row update,
// not on a read-then-write gap.
func (r *repo) Reserve(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE time_slots
		 SET current_bookings = current_bookings + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?
		   AND current_bookings < max_bookings
		   AND EXISTS (
		     SELECT 1 FROM availability_windows w
		     WHERE w.expert_id = time_slots.expert_id
		       AND w.closed = ?
		       AND w.start_at <= time_slots.start_at
		       AND w.end_at >= time_slots.end_at
		   )`,
		id, false,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return slotdomain.ErrSlotUnavailable
	}
	return nil
}

func (r *repo) Release(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE time_slots
		 SET current_bookings = current_bookings - 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND current_bookings > 0`,
		id,
	).Error
}

func (r *repo) ReleaseOrphans(ctx context.Context, conn *gorm.DB, limit int) (int, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).Raw(
		`SELECT s.id
		 FROM time_slots s
		 WHERE s.current_bookings <> (
		   SELECT COUNT(*) FROM bookings b
		   WHERE b.slot_id = s.id
		     AND b.status NOT IN ('cancelled', 'declined')
		 )
		 LIMIT ?`,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return 0, err
	}
	corrected := 0
	for _, id := range ids {
		result := conn.WithContext(ctx).Exec(
			`UPDATE time_slots
			 SET current_bookings = (
			   SELECT COUNT(*) FROM bookings b
			   WHERE b.slot_id = time_slots.id
			     AND b.status NOT IN ('cancelled', 'declined')
			 ), updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			id,
		)
		if result.Error != nil {
			return corrected, result.Error
		}
		corrected += int(result.RowsAffected)
	}
	return corrected, nil
}
