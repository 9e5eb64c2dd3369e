package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// ProviderRef is the provider-side handle for an authorization. ClientSecret
// is returned to the payment UI once and never persisted.
type ProviderRef struct {
	PaymentIntentID string
	ClientSecret    string
}

type AuthorizeRequest struct {
	BookingID snowflake.ID
	LearnerID snowflake.ID
	Amount    int64
	Currency  string
}

type CaptureRequest struct {
	BookingID       snowflake.ID
	PaymentIntentID string
	Amount          int64
}

type VoidRequest struct {
	BookingID       snowflake.ID
	PaymentIntentID string
}

type RefundRequest struct {
	BookingID       snowflake.ID
	PaymentIntentID string
	Amount          int64
	Reason          string
}

// Gateway is the outbound provider contract. Calls are idempotent on the
// provider side via per-operation idempotency keys, so retrying after a
// network failure cannot double-charge.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*ProviderRef, error)
	Capture(ctx context.Context, req CaptureRequest) error
	Void(ctx context.Context, req VoidRequest) error
	Refund(ctx context.Context, req RefundRequest) error
}
