package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/mentorlane/mentorlane/internal/booking/domain"
	"github.com/mentorlane/mentorlane/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() bookingdomain.Repository {
	return &repo{}
}

const bookingColumns = `id, learner_id, expert_id, offering_id, slot_id, start_at, end_at,
	status, payment_status, amount_authorized, amount_captured, amount_refunded, currency,
	payment_intent_id, held_until, learner_notes, expert_notes, declined_reason,
	cancelled_by, cancellation_reason, approved_at, declined_at, cancelled_at,
	created_at, updated_at`

// Booking aliased locally to keep signatures readable.
type Booking = bookingdomain.Booking

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, b *Booking) error {
	return tx.WithContext(ctx).Create(b).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*Booking, error) {
	var item Booking
	err := conn.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`,
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

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Booking, error) {
	var item Booking
	err := tx.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`+db.ForUpdate(tx),
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

func (r *repo) FindByPaymentIntent(ctx context.Context, conn *gorm.DB, paymentIntentID string) (*Booking, error) {
	if paymentIntentID == "" {
		return nil, nil
	}
	var item Booking
	err := conn.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE payment_intent_id = ?`,
		paymentIntentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) HasActiveForOffering(ctx context.Context, conn *gorm.DB, learnerID, offeringID snowflake.ID) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM bookings
		 WHERE learner_id = ? AND offering_id = ?
		   AND status NOT IN ('declined', 'completed', 'cancelled')`,
		learnerID, offeringID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListByLearner(ctx context.Context, conn *gorm.DB, req bookingdomain.ListRequest) ([]Booking, error) {
	return r.list(ctx, conn, "learner_id", req)
}

func (r *repo) ListByExpert(ctx context.Context, conn *gorm.DB, req bookingdomain.ListRequest) ([]Booking, error) {
	return r.list(ctx, conn, "expert_id", req)
}

func (r *repo) list(ctx context.Context, conn *gorm.DB, ownerColumn string, req bookingdomain.ListRequest) ([]Booking, error) {
	req.Normalize()
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + ownerColumn + ` = ?`
	args := []interface{}{req.UserID}
	if req.Status != "" {
		query += ` AND status = ?`
		args = append(args, req.Status)
	}
	query += ` ORDER BY start_at DESC LIMIT ? OFFSET ?`
	args = append(args, req.Limit, req.Offset)

	var items []Booking
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetPaymentIntent(ctx context.Context, conn *gorm.DB, id snowflake.ID, paymentIntentID string) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payment_intent_id = ?, payment_status = 'processing', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'pending' AND payment_status = 'pending'`,
		paymentIntentID, id,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetAuthorized(ctx context.Context, conn *gorm.DB, id snowflake.ID, paymentIntentID string) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = 'awaiting_approval', payment_status = 'authorized',
		     payment_intent_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'pending' AND payment_status IN ('pending', 'processing')`,
		paymentIntentID, id,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetApproved(ctx context.Context, tx *gorm.DB, id snowflake.ID, notes string, at time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = 'confirmed', expert_notes = ?, approved_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'awaiting_approval' AND payment_status = 'authorized'`,
		notes, at, id,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetCaptured(ctx context.Context, conn *gorm.DB, id snowflake.ID, amount int64) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payment_status = 'captured', amount_captured = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN ('confirmed', 'completed') AND payment_status = 'authorized'`,
		amount, id,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetDeclined(ctx context.Context, tx *gorm.DB, id snowflake.ID, reason, notes string, at time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = 'declined', payment_status = 'cancelled',
		     declined_reason = ?, expert_notes = ?, declined_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'awaiting_approval' AND payment_status = 'authorized'`,
		reason, notes, at, id,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetCancelled(ctx context.Context, tx *gorm.DB, id snowflake.ID, fromStatus bookingdomain.Status, payment bookingdomain.PaymentStatus, refunded int64, cancelledBy, reason string, at time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = 'cancelled', payment_status = ?, amount_refunded = ?,
		     cancelled_by = ?, cancellation_reason = ?, cancelled_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		payment, refunded, cancelledBy, reason, at, id, fromStatus,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetCompleted(ctx context.Context, conn *gorm.DB, id snowflake.ID) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = 'completed', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'confirmed' AND payment_status = 'captured'`,
		id,
	)
	return result.RowsAffected > 0, result.Error
}

// Webhook-driven payment updates. The WHERE clauses restrict each write to
// the statuses where the resulting pair stays legal; rows in other states are
// left alone and the caller decides whether that is a deferral or a no-op.

func (r *repo) MarkPaymentFailedByIntent(ctx context.Context, conn *gorm.DB, paymentIntentID string) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payment_status = 'failed', updated_at = CURRENT_TIMESTAMP
		 WHERE payment_intent_id = ? AND status = 'declined' AND payment_status = 'cancelled'`,
		paymentIntentID,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkAuthorizationCancelledByIntent(ctx context.Context, conn *gorm.DB, paymentIntentID string) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payment_status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		 WHERE payment_intent_id = ?
		   AND status IN ('declined', 'cancelled')
		   AND payment_status NOT IN ('captured', 'refunded')`,
		paymentIntentID,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkCapturedByIntent(ctx context.Context, conn *gorm.DB, paymentIntentID string, amount int64) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payment_status = 'captured', amount_captured = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE payment_intent_id = ?
		   AND status IN ('confirmed', 'completed')
		   AND payment_status = 'authorized'`,
		amount, paymentIntentID,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkRefundedByIntent(ctx context.Context, conn *gorm.DB, paymentIntentID string, amount int64) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payment_status = 'refunded', amount_refunded = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE payment_intent_id = ?
		   AND status = 'cancelled'
		   AND payment_status IN ('cancelled', 'refunded')`,
		amount, paymentIntentID,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) ExpiredCandidates(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]Booking, error) {
	var items []Booking
	err := tx.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE status IN ('pending', 'awaiting_approval') AND held_until < ?
		 ORDER BY held_until ASC
		 LIMIT ?`+db.ForUpdateSkipLocked(tx),
		now, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ScrubNotes(ctx context.Context, conn *gorm.DB, before time.Time, limit int) (int, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET learner_notes = '', expert_notes = '', updated_at = CURRENT_TIMESTAMP
		 WHERE id IN (
		   SELECT id FROM bookings
		   WHERE status IN ('declined', 'completed', 'cancelled')
		     AND updated_at < ?
		     AND (learner_notes <> '' OR expert_notes <> '')
		   LIMIT ?
		 )`,
		before, limit,
	)
	return int(result.RowsAffected), result.Error
}
