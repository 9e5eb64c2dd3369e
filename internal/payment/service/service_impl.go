// Package service reconciles provider webhook events against local bookings.
// Verification, dedup, dispatch and outcome recording happen in that order,
// each a precondition for the next.
package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/mentorlane/mentorlane/internal/booking/domain"
	"github.com/mentorlane/mentorlane/internal/clock"
	"github.com/mentorlane/mentorlane/internal/observability/metrics"
	paymentdomain "github.com/mentorlane/mentorlane/internal/payment/domain"
	"github.com/mentorlane/mentorlane/internal/payment/gateway/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const provider = "stripe"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Webhook *stripe.Webhook
	Repo    paymentdomain.Repository
	Booking bookingdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	webhook *stripe.Webhook
	repo    paymentdomain.Repository
	booking bookingdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		webhook: p.Webhook,
		repo:    p.Repo,
		booking: p.Booking,
		metrics: p.Metrics,
	}
}

func (s *service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	now := s.clock.Now()

	if err := s.webhook.Verify(payload, headers, now); err != nil {
		s.metrics.RecordWebhookEvent("unknown", "invalid_signature")
		return err
	}

	event, err := s.webhook.Parse(payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.metrics.RecordWebhookEvent("unknown", "ignored")
		}
		return err
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		BookingID:       event.BookingID,
		PaymentIntentID: event.PaymentIntentID,
		Payload:         string(payload),
		ReceivedAt:      now,
	})
	if err != nil {
		return err
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Success {
			s.metrics.RecordWebhookEvent(event.Type, "duplicate")
			return paymentdomain.ErrEventAlreadyProcessed
		}
		// Seen before but never handled successfully; process again.
	}

	dispatchErr := s.dispatch(ctx, event)

	outcome := "processed"
	message := ""
	success := dispatchErr == nil
	if dispatchErr != nil {
		if isTerminalMismatch(dispatchErr) {
			// The booking can never reach the state this event describes.
			// Acknowledge so the provider stops redelivering.
			success = true
			outcome = "deferred"
			message = dispatchErr.Error()
			s.log.Warn("webhook event had no applicable booking state",
				zap.String("event_type", event.Type),
				zap.String("provider_event_id", event.ProviderEventID),
				zap.String("payment_intent_id", event.PaymentIntentID),
				zap.Error(dispatchErr))
			dispatchErr = nil
		} else {
			outcome = "failed"
			message = dispatchErr.Error()
		}
	}

	if err := s.repo.MarkProcessed(ctx, s.db, provider, event.ProviderEventID, success, message); err != nil {
		s.log.Error("recording webhook outcome failed",
			zap.String("provider_event_id", event.ProviderEventID), zap.Error(err))
		if dispatchErr == nil {
			dispatchErr = err
		}
	}

	s.metrics.RecordWebhookEvent(event.Type, outcome)
	return dispatchErr
}

// dispatch applies exactly one payment-side update per event type, keyed by
// the intent reference carried in the event itself. No ordering assumptions
// between events.
func (s *service) dispatch(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventAuthorizationSucceeded:
		if event.BookingID != 0 {
			_, err := s.booking.Authorize(ctx, event.BookingID, event.PaymentIntentID)
			return err
		}
		return s.booking.AuthorizeByIntent(ctx, event.PaymentIntentID)
	case paymentdomain.EventPaymentFailed:
		return s.booking.MarkPaymentFailed(ctx, event.PaymentIntentID)
	case paymentdomain.EventAuthorizationCancelled:
		return s.booking.MarkAuthorizationCancelled(ctx, event.PaymentIntentID)
	case paymentdomain.EventChargeSucceeded:
		return s.booking.MarkCaptured(ctx, event.PaymentIntentID, event.Amount)
	case paymentdomain.EventChargeRefunded:
		return s.booking.MarkRefunded(ctx, event.PaymentIntentID, event.Amount)
	case paymentdomain.EventDisputeCreated:
		// Disputes are an operational signal; no local state matches them.
		s.log.Warn("charge dispute opened",
			zap.String("payment_intent_id", event.PaymentIntentID),
			zap.Int64("amount", event.Amount),
			zap.String("currency", event.Currency))
		return nil
	default:
		return paymentdomain.ErrEventIgnored
	}
}

// isTerminalMismatch classifies dispatch errors that no retry can fix.
func isTerminalMismatch(err error) bool {
	return errors.Is(err, bookingdomain.ErrWrongStatus) ||
		errors.Is(err, bookingdomain.ErrNotFound)
}
