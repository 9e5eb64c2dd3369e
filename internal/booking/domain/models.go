// Package domain defines the booking lifecycle model. Bookings move along two
// coupled axes, status and payment_status, and only the pairs listed in
// legalPairs may ever be persisted.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusConfirmed        Status = "confirmed"
	StatusDeclined         Status = "declined"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

// IsTerminal reports whether no further booking-status transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDeclined || s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

var legalPairs = map[Status][]PaymentStatus{
	StatusPending:          {PaymentPending, PaymentProcessing},
	StatusAwaitingApproval: {PaymentAuthorized},
	StatusConfirmed:        {PaymentAuthorized, PaymentCaptured},
	StatusDeclined:         {PaymentCancelled, PaymentFailed},
	StatusCancelled:        {PaymentCancelled, PaymentRefunded},
	StatusCompleted:        {PaymentCaptured},
}

// LegalPair reports whether the combination may be persisted.
func LegalPair(s Status, p PaymentStatus) bool {
	for _, allowed := range legalPairs[s] {
		if p == allowed {
			return true
		}
	}
	return false
}

const (
	CancelledByLearner = "learner"
	CancelledByExpert  = "expert"
	CancelledBySystem  = "system"
)

// ReasonHoldExpired marks sweeper-initiated cancellations.
const ReasonHoldExpired = "hold_expired"

type Booking struct {
	ID                 snowflake.ID  `json:"id" gorm:"primaryKey"`
	LearnerID          snowflake.ID  `json:"learner_id" gorm:"not null;index"`
	ExpertID           snowflake.ID  `json:"expert_id" gorm:"not null;index"`
	OfferingID         snowflake.ID  `json:"offering_id" gorm:"not null;index"`
	SlotID             snowflake.ID  `json:"slot_id" gorm:"not null;index"`
	StartAt            time.Time     `json:"start_at" gorm:"not null"`
	EndAt              time.Time     `json:"end_at" gorm:"not null"`
	Status             Status        `json:"status" gorm:"not null"`
	PaymentStatus      PaymentStatus `json:"payment_status" gorm:"not null"`
	AmountAuthorized   int64         `json:"amount_authorized" gorm:"not null"`
	AmountCaptured     int64         `json:"amount_captured" gorm:"not null;default:0"`
	AmountRefunded     int64         `json:"amount_refunded" gorm:"not null;default:0"`
	Currency           string        `json:"currency" gorm:"not null"`
	PaymentIntentID    string        `json:"payment_intent_id" gorm:"index"`
	HeldUntil          time.Time     `json:"held_until" gorm:"not null"`
	LearnerNotes       string        `json:"learner_notes"`
	ExpertNotes        string        `json:"expert_notes"`
	DeclinedReason     string        `json:"declined_reason"`
	CancelledBy        string        `json:"cancelled_by"`
	CancellationReason string        `json:"cancellation_reason"`
	ApprovedAt         *time.Time    `json:"approved_at"`
	DeclinedAt         *time.Time    `json:"declined_at"`
	CancelledAt        *time.Time    `json:"cancelled_at"`
	CreatedAt          time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time     `json:"updated_at" gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

var (
	ErrNotFound         = errors.New("booking_not_found")
	ErrWrongStatus      = errors.New("wrong_status")
	ErrForbidden        = errors.New("forbidden")
	ErrSlotUnavailable  = errors.New("slot_unavailable")
	ErrDuplicateBooking = errors.New("duplicate_booking")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrOfferingInactive = errors.New("offering_inactive")
	ErrIllegalPair      = errors.New("illegal_status_pair")
)
