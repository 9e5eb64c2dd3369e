// Package domain defines the payment-provider contract and the webhook event
// ledger. The rest of the system talks to the provider only through these
// types.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Canonical event types after parsing a provider payload. Names follow the
// provider's own vocabulary so logs line up with the provider dashboard.
const (
	EventAuthorizationSucceeded = "payment_intent.amount_capturable_updated"
	EventPaymentFailed          = "payment_intent.payment_failed"
	EventAuthorizationCancelled = "payment_intent.canceled"
	EventChargeSucceeded        = "charge.succeeded"
	EventChargeRefunded         = "charge.refunded"
	EventDisputeCreated         = "charge.dispute.created"
)

// PaymentEvent is a provider webhook reduced to the fields the reconciler
// acts on.
type PaymentEvent struct {
	ProviderEventID string
	Type            string
	PaymentIntentID string
	BookingID       snowflake.ID
	Amount          int64
	Currency        string
	OccurredAt      time.Time
}

// EventRecord is the append-only dedup ledger row for a received webhook.
type EventRecord struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Provider        string       `json:"provider" gorm:"not null"`
	ProviderEventID string       `json:"provider_event_id" gorm:"not null"`
	EventType       string       `json:"event_type" gorm:"not null"`
	BookingID       snowflake.ID `json:"booking_id"`
	PaymentIntentID string       `json:"payment_intent_id"`
	Payload         string       `json:"payload"`
	ReceivedAt      time.Time    `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time   `json:"processed_at"`
	Success         bool         `json:"success" gorm:"not null;default:false"`
	ErrorMessage    string       `json:"error_message"`
}

func (EventRecord) TableName() string { return "webhook_events" }

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
)
