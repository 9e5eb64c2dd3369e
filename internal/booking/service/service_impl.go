// Package service implements the booking state machine. Every operation is a
// single transaction whose status preconditions live in the SQL guard, so
// concurrent callers racing on the same booking or slot lose with
// ErrWrongStatus or ErrSlotUnavailable instead of corrupting state.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/mentorlane/mentorlane/internal/booking/domain"
	"github.com/mentorlane/mentorlane/internal/booking/policy"
	"github.com/mentorlane/mentorlane/internal/clock"
	"github.com/mentorlane/mentorlane/internal/config"
	"github.com/mentorlane/mentorlane/internal/observability/metrics"
	offeringdomain "github.com/mentorlane/mentorlane/internal/offering/domain"
	paymentdomain "github.com/mentorlane/mentorlane/internal/payment/domain"
	slotdomain "github.com/mentorlane/mentorlane/internal/slot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config       config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         bookingdomain.Repository
	SlotRepo     slotdomain.Repository
	OfferingRepo offeringdomain.Repository
	Gateway      paymentdomain.Gateway
	Metrics      *metrics.Metrics `optional:"true"`
}

type service struct {
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         bookingdomain.Repository
	slotRepo     slotdomain.Repository
	offeringRepo offeringdomain.Repository
	gateway      paymentdomain.Gateway
	metrics      *metrics.Metrics
}

func NewService(p Params) bookingdomain.Service {
	return &service{
		cfg:          p.Config,
		db:           p.DB,
		log:          p.Log.Named("booking.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		slotRepo:     p.SlotRepo,
		offeringRepo: p.OfferingRepo,
		gateway:      p.Gateway,
		metrics:      p.Metrics,
	}
}

func (s *service) Create(ctx context.Context, req bookingdomain.CreateBookingRequest) (*bookingdomain.CreateBookingResponse, error) {
	now := s.clock.Now()

	offering, err := s.offeringRepo.FindByID(ctx, s.db, req.OfferingID)
	if err != nil {
		return nil, err
	}
	if offering == nil {
		return nil, bookingdomain.ErrNotFound
	}
	if !offering.Active {
		return nil, bookingdomain.ErrOfferingInactive
	}

	slot, err := s.slotRepo.FindByID(ctx, s.db, req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot == nil || slot.OfferingID != req.OfferingID {
		return nil, bookingdomain.ErrNotFound
	}
	if err := validateTimeRange(slot.StartAt, slot.EndAt, now); err != nil {
		return nil, err
	}

	duplicate, err := s.repo.HasActiveForOffering(ctx, s.db, req.LearnerID, req.OfferingID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, bookingdomain.ErrDuplicateBooking
	}

	booking := &bookingdomain.Booking{
		ID:               s.genID.Generate(),
		LearnerID:        req.LearnerID,
		ExpertID:         slot.ExpertID,
		OfferingID:       offering.ID,
		SlotID:           slot.ID,
		StartAt:          slot.StartAt,
		EndAt:            slot.EndAt,
		Status:           bookingdomain.StatusPending,
		PaymentStatus:    bookingdomain.PaymentPending,
		AmountAuthorized: offering.PriceAmount,
		Currency:         offering.Currency,
		HeldUntil:        now.Add(s.holdWindow()),
		LearnerNotes:     req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := assertLegalPair(booking.Status, booking.PaymentStatus); err != nil {
		return nil, err
	}

	// Reserve and insert commit as one unit so a failed insert cannot leak a
	// consumed slot and a failed reserve cannot leave a booking without one.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.slotRepo.Reserve(ctx, tx, slot.ID); err != nil {
			if err == slotdomain.ErrSlotUnavailable {
				return bookingdomain.ErrSlotUnavailable
			}
			return err
		}
		return s.repo.Insert(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}

	ref, err := s.gateway.Authorize(ctx, paymentdomain.AuthorizeRequest{
		BookingID: booking.ID,
		LearnerID: booking.LearnerID,
		Amount:    booking.AmountAuthorized,
		Currency:  booking.Currency,
	})
	if err != nil {
		s.log.Error("payment authorization failed, rolling back booking",
			zap.Int64("booking_id", int64(booking.ID)),
			zap.Int64("amount", booking.AmountAuthorized),
			zap.Error(err))
		s.compensateCreate(ctx, booking)
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	if _, err := s.repo.SetPaymentIntent(ctx, s.db, booking.ID, ref.PaymentIntentID); err != nil {
		return nil, err
	}
	booking.PaymentStatus = bookingdomain.PaymentProcessing
	booking.PaymentIntentID = ref.PaymentIntentID

	s.metrics.RecordBookingCreated(booking.Currency)
	s.log.Info("booking created",
		zap.Int64("booking_id", int64(booking.ID)),
		zap.Int64("slot_id", int64(slot.ID)),
		zap.Int64("learner_id", int64(booking.LearnerID)),
		zap.Time("held_until", booking.HeldUntil))

	return &bookingdomain.CreateBookingResponse{
		Booking:             booking,
		PaymentClientSecret: ref.ClientSecret,
	}, nil
}

// compensateCreate undoes a freshly inserted booking whose payment
// authorization never started. Best effort; the sweeper catches leftovers.
func (s *service) compensateCreate(ctx context.Context, booking *bookingdomain.Booking) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.SetCancelled(ctx, tx, booking.ID, bookingdomain.StatusPending,
			bookingdomain.PaymentCancelled, 0, bookingdomain.CancelledBySystem,
			"authorization_unavailable", s.clock.Now())
		if err != nil || !ok {
			return err
		}
		return s.slotRepo.Release(ctx, tx, booking.SlotID)
	})
	if err != nil {
		s.log.Error("booking compensation failed",
			zap.Int64("booking_id", int64(booking.ID)), zap.Error(err))
	}
}

func (s *service) Authorize(ctx context.Context, bookingID snowflake.ID, paymentIntentID string) (*bookingdomain.Booking, error) {
	var booking *bookingdomain.Booking
	err := s.db.Transaction(func(tx *gorm.DB) error {
		b, err := s.repo.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return bookingdomain.ErrNotFound
		}

		// Idempotent re-entry at the terminal pair.
		if b.Status == bookingdomain.StatusAwaitingApproval &&
			b.PaymentStatus == bookingdomain.PaymentAuthorized &&
			b.PaymentIntentID == paymentIntentID {
			booking = b
			return nil
		}

		ok, err := s.repo.SetAuthorized(ctx, tx, bookingID, paymentIntentID)
		if err != nil {
			return err
		}
		if !ok {
			return bookingdomain.ErrWrongStatus
		}
		b.Status = bookingdomain.StatusAwaitingApproval
		b.PaymentStatus = bookingdomain.PaymentAuthorized
		b.PaymentIntentID = paymentIntentID
		booking = b
		s.metrics.RecordTransition(string(bookingdomain.StatusAwaitingApproval))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) Approve(ctx context.Context, req bookingdomain.ApproveRequest) (*bookingdomain.ApproveResponse, error) {
	booking, err := s.repo.FindByID(ctx, s.db, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}
	if booking.ExpertID != req.ApproverID {
		return nil, bookingdomain.ErrForbidden
	}

	now := s.clock.Now()
	ok, err := s.repo.SetApproved(ctx, s.db, req.BookingID, req.Notes, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bookingdomain.ErrWrongStatus
	}
	booking.Status = bookingdomain.StatusConfirmed
	booking.ExpertNotes = req.Notes
	booking.ApprovedAt = &now
	s.metrics.RecordTransition(string(bookingdomain.StatusConfirmed))

	outcome := bookingdomain.CaptureSucceeded
	err = s.gateway.Capture(ctx, paymentdomain.CaptureRequest{
		BookingID:       booking.ID,
		PaymentIntentID: booking.PaymentIntentID,
		Amount:          booking.AmountAuthorized,
	})
	if err != nil {
		// The approval stands. Capture is retried out-of-band or confirmed by
		// a later charge.succeeded webhook.
		outcome = bookingdomain.CaptureDeferred
		s.log.Error("capture failed after approval",
			zap.Int64("booking_id", int64(booking.ID)),
			zap.String("payment_intent_id", booking.PaymentIntentID),
			zap.Int64("amount", booking.AmountAuthorized),
			zap.Error(err))
	} else {
		if _, err := s.repo.SetCaptured(ctx, s.db, booking.ID, booking.AmountAuthorized); err != nil {
			return nil, err
		}
		booking.PaymentStatus = bookingdomain.PaymentCaptured
		booking.AmountCaptured = booking.AmountAuthorized
	}

	return &bookingdomain.ApproveResponse{Booking: booking, CaptureOutcome: outcome}, nil
}

func (s *service) Decline(ctx context.Context, req bookingdomain.DeclineRequest) (*bookingdomain.Booking, error) {
	booking, err := s.repo.FindByID(ctx, s.db, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}
	if booking.ExpertID != req.DeclinerID {
		return nil, bookingdomain.ErrForbidden
	}

	now := s.clock.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.SetDeclined(ctx, tx, req.BookingID, req.Reason, req.Notes, now)
		if err != nil {
			return err
		}
		if !ok {
			return bookingdomain.ErrWrongStatus
		}
		return s.slotRepo.Release(ctx, tx, booking.SlotID)
	})
	if err != nil {
		return nil, err
	}
	booking.Status = bookingdomain.StatusDeclined
	booking.PaymentStatus = bookingdomain.PaymentCancelled
	booking.DeclinedReason = req.Reason
	booking.ExpertNotes = req.Notes
	booking.DeclinedAt = &now
	s.metrics.RecordTransition(string(bookingdomain.StatusDeclined))

	if booking.PaymentIntentID != "" {
		err = s.gateway.Void(ctx, paymentdomain.VoidRequest{
			BookingID:       booking.ID,
			PaymentIntentID: booking.PaymentIntentID,
		})
		if err != nil {
			s.log.Error("void failed after decline",
				zap.Int64("booking_id", int64(booking.ID)),
				zap.String("payment_intent_id", booking.PaymentIntentID),
				zap.Error(err))
			if _, markErr := s.repo.MarkPaymentFailedByIntent(ctx, s.db, booking.PaymentIntentID); markErr != nil {
				s.log.Error("marking payment failed after void failure",
					zap.Int64("booking_id", int64(booking.ID)), zap.Error(markErr))
			} else {
				booking.PaymentStatus = bookingdomain.PaymentFailed
			}
		}
	}

	return booking, nil
}

func (s *service) Cancel(ctx context.Context, req bookingdomain.CancelRequest) (*bookingdomain.CancelResponse, error) {
	now := s.clock.Now()

	var (
		booking   *bookingdomain.Booking
		breakdown policy.Breakdown
		needVoid  bool
		refund    int64
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		b, err := s.repo.FindByIDForUpdate(ctx, tx, req.BookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return bookingdomain.ErrNotFound
		}
		if b.Status.IsTerminal() {
			return bookingdomain.ErrWrongStatus
		}

		cancelledBy := req.CancelledBy
		if cancelledBy == "" {
			switch req.CancellerID {
			case b.LearnerID:
				cancelledBy = bookingdomain.CancelledByLearner
			case b.ExpertID:
				cancelledBy = bookingdomain.CancelledByExpert
			default:
				return bookingdomain.ErrForbidden
			}
		}

		amount := b.AmountAuthorized
		if b.PaymentStatus == bookingdomain.PaymentCaptured {
			amount = b.AmountCaptured
		}
		breakdown = policy.ComputeRefund(b.StartAt, now, cancelParty(cancelledBy), amount)

		target := bookingdomain.PaymentCancelled
		if b.PaymentStatus == bookingdomain.PaymentCaptured {
			target = bookingdomain.PaymentRefunded
			refund = breakdown.RefundAmount
		} else {
			needVoid = b.PaymentIntentID != ""
		}
		if !bookingdomain.LegalPair(bookingdomain.StatusCancelled, target) {
			return bookingdomain.ErrIllegalPair
		}

		ok, err := s.repo.SetCancelled(ctx, tx, b.ID, b.Status, target, refund, cancelledBy, req.Reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return bookingdomain.ErrWrongStatus
		}
		if err := s.slotRepo.Release(ctx, tx, b.SlotID); err != nil {
			return err
		}

		b.Status = bookingdomain.StatusCancelled
		b.PaymentStatus = target
		b.AmountRefunded = refund
		b.CancelledBy = cancelledBy
		b.CancellationReason = req.Reason
		b.CancelledAt = &now
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(string(bookingdomain.StatusCancelled))

	// Provider calls happen after the local terminal state committed. A
	// failure here is an operational concern, not a reason to resurrect the
	// booking.
	switch {
	case needVoid:
		if err := s.gateway.Void(ctx, paymentdomain.VoidRequest{
			BookingID:       booking.ID,
			PaymentIntentID: booking.PaymentIntentID,
		}); err != nil {
			s.log.Error("void failed after cancel",
				zap.Int64("booking_id", int64(booking.ID)),
				zap.String("payment_intent_id", booking.PaymentIntentID),
				zap.Error(err))
		}
	case refund > 0:
		if err := s.gateway.Refund(ctx, paymentdomain.RefundRequest{
			BookingID:       booking.ID,
			PaymentIntentID: booking.PaymentIntentID,
			Amount:          refund,
			Reason:          req.Reason,
		}); err != nil {
			s.log.Error("refund failed after cancel",
				zap.Int64("booking_id", int64(booking.ID)),
				zap.String("payment_intent_id", booking.PaymentIntentID),
				zap.Int64("amount", refund),
				zap.Error(err))
		}
	}

	return &bookingdomain.CancelResponse{Booking: booking, Refund: breakdown}, nil
}

func (s *service) Expire(ctx context.Context, bookingID snowflake.ID) (*bookingdomain.Booking, error) {
	resp, err := s.Cancel(ctx, bookingdomain.CancelRequest{
		BookingID:   bookingID,
		CancelledBy: bookingdomain.CancelledBySystem,
		Reason:      bookingdomain.ReasonHoldExpired,
	})
	if err != nil {
		return nil, err
	}
	return resp.Booking, nil
}

func (s *service) Complete(ctx context.Context, bookingID, actorID snowflake.ID) (*bookingdomain.Booking, error) {
	booking, err := s.repo.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}
	if actorID != 0 && actorID != booking.ExpertID {
		return nil, bookingdomain.ErrForbidden
	}
	if s.clock.Now().Before(booking.EndAt) {
		return nil, bookingdomain.ErrWrongStatus
	}

	ok, err := s.repo.SetCompleted(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bookingdomain.ErrWrongStatus
	}
	booking.Status = bookingdomain.StatusCompleted
	s.metrics.RecordTransition(string(bookingdomain.StatusCompleted))
	return booking, nil
}

func (s *service) GetByID(ctx context.Context, bookingID, callerID snowflake.ID) (*bookingdomain.Booking, error) {
	booking, err := s.repo.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}
	if callerID != booking.LearnerID && callerID != booking.ExpertID {
		return nil, bookingdomain.ErrForbidden
	}
	return booking, nil
}

func (s *service) ListByLearner(ctx context.Context, req bookingdomain.ListRequest) ([]bookingdomain.Booking, error) {
	return s.repo.ListByLearner(ctx, s.db, req)
}

func (s *service) ListByExpert(ctx context.Context, req bookingdomain.ListRequest) ([]bookingdomain.Booking, error) {
	return s.repo.ListByExpert(ctx, s.db, req)
}

func (s *service) PreviewCancellation(ctx context.Context, bookingID, callerID snowflake.ID) (*policy.Breakdown, error) {
	booking, err := s.repo.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}

	var party policy.Party
	switch callerID {
	case booking.LearnerID:
		party = policy.PartyLearner
	case booking.ExpertID:
		party = policy.PartyExpert
	default:
		return nil, bookingdomain.ErrForbidden
	}
	if booking.Status.IsTerminal() {
		return nil, bookingdomain.ErrWrongStatus
	}

	amount := booking.AmountAuthorized
	if booking.PaymentStatus == bookingdomain.PaymentCaptured {
		amount = booking.AmountCaptured
	}
	breakdown := policy.ComputeRefund(booking.StartAt, s.clock.Now(), party, amount)
	return &breakdown, nil
}

// Webhook reconciliation. Field updates only; booking-status transitions stay
// with the explicit user actions above, except authorization success which
// carries pending bookings to awaiting_approval.

func (s *service) AuthorizeByIntent(ctx context.Context, paymentIntentID string) error {
	booking, err := s.repo.FindByPaymentIntent(ctx, s.db, paymentIntentID)
	if err != nil {
		return err
	}
	if booking == nil {
		return bookingdomain.ErrNotFound
	}
	_, err = s.Authorize(ctx, booking.ID, paymentIntentID)
	return err
}

func (s *service) MarkPaymentFailed(ctx context.Context, paymentIntentID string) error {
	ok, err := s.repo.MarkPaymentFailedByIntent(ctx, s.db, paymentIntentID)
	if err != nil {
		return err
	}
	if !ok {
		// A pending booking keeps its retryable payment state; the learner may
		// try another payment method until the hold expires.
		s.log.Info("payment failure noted without state change",
			zap.String("payment_intent_id", paymentIntentID))
	}
	return nil
}

func (s *service) MarkAuthorizationCancelled(ctx context.Context, paymentIntentID string) error {
	ok, err := s.repo.MarkAuthorizationCancelledByIntent(ctx, s.db, paymentIntentID)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("authorization cancelled at provider before local terminal state",
			zap.String("payment_intent_id", paymentIntentID))
	}
	// The hold at the provider is gone either way; reconcile slot counters so
	// a cancelled-at-the-processor booking cannot pin capacity.
	if _, cleanupErr := s.slotRepo.ReleaseOrphans(ctx, s.db, 100); cleanupErr != nil {
		s.log.Error("orphaned slot cleanup failed", zap.Error(cleanupErr))
	}
	return nil
}

func (s *service) MarkCaptured(ctx context.Context, paymentIntentID string, amount int64) error {
	ok, err := s.repo.MarkCapturedByIntent(ctx, s.db, paymentIntentID, amount)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Info("capture event had no pending authorization to settle",
			zap.String("payment_intent_id", paymentIntentID),
			zap.Int64("amount", amount))
	}
	return nil
}

func (s *service) MarkRefunded(ctx context.Context, paymentIntentID string, amount int64) error {
	ok, err := s.repo.MarkRefundedByIntent(ctx, s.db, paymentIntentID, amount)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Info("refund event had no cancelled booking to settle",
			zap.String("payment_intent_id", paymentIntentID),
			zap.Int64("amount", amount))
	}
	return nil
}

func (s *service) holdWindow() time.Duration {
	w := s.cfg.BookingHoldWindow
	if w < bookingdomain.MinHoldWindow {
		w = bookingdomain.MinHoldWindow
	}
	if w > bookingdomain.MaxHoldWindow {
		w = bookingdomain.MaxHoldWindow
	}
	return w
}

func validateTimeRange(start, end, now time.Time) error {
	if !end.After(start) {
		return bookingdomain.ErrInvalidTimeRange
	}
	if start.Sub(now) < bookingdomain.MinLeadTime {
		return bookingdomain.ErrInvalidTimeRange
	}
	if start.Sub(now) > bookingdomain.BookingHorizon {
		return bookingdomain.ErrInvalidTimeRange
	}
	if start.UnixNano()%int64(bookingdomain.SlotAlignment) != 0 {
		return bookingdomain.ErrInvalidTimeRange
	}
	return nil
}

func cancelParty(cancelledBy string) policy.Party {
	switch cancelledBy {
	case bookingdomain.CancelledByExpert:
		return policy.PartyExpert
	case bookingdomain.CancelledBySystem:
		return policy.PartySystem
	default:
		return policy.PartyLearner
	}
}

func assertLegalPair(s bookingdomain.Status, p bookingdomain.PaymentStatus) error {
	if !bookingdomain.LegalPair(s, p) {
		return fmt.Errorf("%w: %s/%s", bookingdomain.ErrIllegalPair, s, p)
	}
	return nil
}
