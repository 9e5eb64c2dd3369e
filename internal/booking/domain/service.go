package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorlane/mentorlane/internal/booking/policy"
)

// Service owns every write to bookings and to slot capacity. No other
// component mutates those rows.
type Service interface {
	Create(ctx context.Context, req CreateBookingRequest) (*CreateBookingResponse, error)

	// Authorize confirms the payment authorization for a pending booking and
	// moves it to awaiting_approval. Re-entry at the terminal pair with the
	// same intent is a no-op.
	Authorize(ctx context.Context, bookingID snowflake.ID, paymentIntentID string) (*Booking, error)

	Approve(ctx context.Context, req ApproveRequest) (*ApproveResponse, error)
	Decline(ctx context.Context, req DeclineRequest) (*Booking, error)
	Cancel(ctx context.Context, req CancelRequest) (*CancelResponse, error)

	// Expire is the sweeper's system cancel: full void or refund, no fee.
	Expire(ctx context.Context, bookingID snowflake.ID) (*Booking, error)

	Complete(ctx context.Context, bookingID, actorID snowflake.ID) (*Booking, error)

	GetByID(ctx context.Context, bookingID, callerID snowflake.ID) (*Booking, error)
	ListByLearner(ctx context.Context, req ListRequest) ([]Booking, error)
	ListByExpert(ctx context.Context, req ListRequest) ([]Booking, error)
	PreviewCancellation(ctx context.Context, bookingID, callerID snowflake.ID) (*policy.Breakdown, error)

	// Reconciliation entry points driven by provider webhooks. Each applies a
	// payment-side field update keyed by the provider intent reference and
	// refuses combinations the pair table forbids.
	AuthorizeByIntent(ctx context.Context, paymentIntentID string) error
	MarkPaymentFailed(ctx context.Context, paymentIntentID string) error
	MarkAuthorizationCancelled(ctx context.Context, paymentIntentID string) error
	MarkCaptured(ctx context.Context, paymentIntentID string, amount int64) error
	MarkRefunded(ctx context.Context, paymentIntentID string, amount int64) error
}
