package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorlane/mentorlane/internal/booking/policy"
)

type CreateBookingRequest struct {
	LearnerID  snowflake.ID `json:"-"`
	OfferingID snowflake.ID `json:"offering_id,string" binding:"required"`
	SlotID     snowflake.ID `json:"slot_id,string" binding:"required"`
	Notes      string       `json:"notes"`
}

// CreateBookingResponse carries the one-time client secret the payment UI
// needs to complete the authorization. The secret is never persisted.
type CreateBookingResponse struct {
	Booking             *Booking `json:"booking"`
	PaymentClientSecret string   `json:"payment_client_secret,omitempty"`
}

type ApproveRequest struct {
	BookingID  snowflake.ID `json:"-"`
	ApproverID snowflake.ID `json:"-"`
	Notes      string       `json:"notes"`
}

// CaptureOutcome reports what happened on the payment side of an approval.
// "deferred" means the local transition committed but the capture call failed
// and will be reconciled out-of-band.
type CaptureOutcome string

const (
	CaptureSucceeded CaptureOutcome = "captured"
	CaptureDeferred  CaptureOutcome = "deferred"
)

type ApproveResponse struct {
	Booking        *Booking       `json:"booking"`
	CaptureOutcome CaptureOutcome `json:"capture_outcome"`
}

type DeclineRequest struct {
	BookingID  snowflake.ID `json:"-"`
	DeclinerID snowflake.ID `json:"-"`
	Reason     string       `json:"reason"`
	Notes      string       `json:"notes"`
}

type CancelRequest struct {
	BookingID   snowflake.ID `json:"-"`
	CancellerID snowflake.ID `json:"-"`
	// CancelledBy is derived by the service from the canceller's relationship
	// to the booking, or set to system by the sweeper.
	CancelledBy string `json:"-"`
	Reason      string `json:"reason"`
}

type CancelResponse struct {
	Booking *Booking         `json:"booking"`
	Refund  policy.Breakdown `json:"refund"`
}

type ListRequest struct {
	UserID snowflake.ID
	Status Status
	Limit  int
	Offset int
}

func (r *ListRequest) Normalize() {
	if r.Limit <= 0 || r.Limit > 100 {
		r.Limit = 20
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
}

// Hold window bounds for expert approval after creation.
const (
	MinHoldWindow     = 10 * time.Minute
	MaxHoldWindow     = 30 * time.Minute
	DefaultHoldWindow = 30 * time.Minute
)

// Lead-time and horizon rules for the requested session start.
const (
	MinLeadTime    = 2 * time.Hour
	BookingHorizon = 90 * 24 * time.Hour
	SlotAlignment  = 15 * time.Minute
)
