package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is raw row access for bookings. Transition methods encode their
// status preconditions in the UPDATE's WHERE clause and report false when the
// guard did not match, so racing callers lose cleanly instead of overwriting
// each other.
type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, b *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Booking, error)
	FindByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Booking, error)

	// HasActiveForOffering is the duplicate-booking guard: any non-terminal
	// booking by the learner for the offering counts.
	HasActiveForOffering(ctx context.Context, db *gorm.DB, learnerID, offeringID snowflake.ID) (bool, error)

	ListByLearner(ctx context.Context, db *gorm.DB, req ListRequest) ([]Booking, error)
	ListByExpert(ctx context.Context, db *gorm.DB, req ListRequest) ([]Booking, error)

	// SetPaymentIntent records the provider handle and moves payment to
	// processing, only while the booking is still pending/pending.
	SetPaymentIntent(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentIntentID string) (bool, error)

	// SetAuthorized moves pending → awaiting_approval with payment authorized.
	SetAuthorized(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentIntentID string) (bool, error)

	// SetApproved moves awaiting_approval/authorized → confirmed/authorized.
	SetApproved(ctx context.Context, tx *gorm.DB, id snowflake.ID, notes string, at time.Time) (bool, error)

	// SetCaptured settles the payment side after a successful capture.
	SetCaptured(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) (bool, error)

	// SetDeclined moves awaiting_approval/authorized → declined/cancelled.
	SetDeclined(ctx context.Context, tx *gorm.DB, id snowflake.ID, reason, notes string, at time.Time) (bool, error)

	// SetCancelled terminates any non-terminal booking. The payment status to
	// persist (cancelled or refunded) is chosen by the caller from the current
	// payment state and the refund amount.
	SetCancelled(ctx context.Context, tx *gorm.DB, id snowflake.ID, fromStatus Status, payment PaymentStatus, refunded int64, cancelledBy, reason string, at time.Time) (bool, error)

	// SetCompleted moves confirmed/captured → completed/captured.
	SetCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	// Payment-side updates keyed by provider intent, each guarded so only
	// legal status pairs can result.
	MarkPaymentFailedByIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (bool, error)
	MarkAuthorizationCancelledByIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (bool, error)
	MarkCapturedByIntent(ctx context.Context, db *gorm.DB, paymentIntentID string, amount int64) (bool, error)
	MarkRefundedByIntent(ctx context.Context, db *gorm.DB, paymentIntentID string, amount int64) (bool, error)

	// ExpiredCandidates claims a batch of past-deadline holds for the sweeper.
	ExpiredCandidates(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]Booking, error)

	// ScrubNotes blanks notes on terminal bookings older than the cutoff.
	ScrubNotes(ctx context.Context, db *gorm.DB, before time.Time, limit int) (int, error)
}
