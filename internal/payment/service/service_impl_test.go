package service_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/mentorlane/mentorlane/internal/booking/domain"
	bookingrepo "github.com/mentorlane/mentorlane/internal/booking/repository"
	bookingservice "github.com/mentorlane/mentorlane/internal/booking/service"
	"github.com/mentorlane/mentorlane/internal/clock"
	"github.com/mentorlane/mentorlane/internal/config"
	offeringdomain "github.com/mentorlane/mentorlane/internal/offering/domain"
	offeringrepo "github.com/mentorlane/mentorlane/internal/offering/repository"
	paymentdomain "github.com/mentorlane/mentorlane/internal/payment/domain"
	"github.com/mentorlane/mentorlane/internal/payment/gateway/stripe"
	paymentrepo "github.com/mentorlane/mentorlane/internal/payment/repository"
	paymentservice "github.com/mentorlane/mentorlane/internal/payment/service"
	slotdomain "github.com/mentorlane/mentorlane/internal/slot/domain"
	slotrepo "github.com/mentorlane/mentorlane/internal/slot/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

type fakeGateway struct{}

func (fakeGateway) Authorize(ctx context.Context, req paymentdomain.AuthorizeRequest) (*paymentdomain.ProviderRef, error) {
	return &paymentdomain.ProviderRef{
		PaymentIntentID: fmt.Sprintf("pi_%d", req.BookingID),
		ClientSecret:    fmt.Sprintf("pi_%d_secret", req.BookingID),
	}, nil
}
func (fakeGateway) Capture(ctx context.Context, req paymentdomain.CaptureRequest) error { return nil }
func (fakeGateway) Void(ctx context.Context, req paymentdomain.VoidRequest) error       { return nil }
func (fakeGateway) Refund(ctx context.Context, req paymentdomain.RefundRequest) error   { return nil }

type fixture struct {
	db          *gorm.DB
	node        *snowflake.Node
	clk         *clock.FakeClock
	webhook     *stripe.Webhook
	bookingRepo bookingdomain.Repository
	bookingSvc  bookingdomain.Service
	svc         paymentdomain.Service
}

var baseTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(8)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	clk := clock.NewFakeClock(baseTime)
	bookingRepo := bookingrepo.Provide()
	bookingSvc := bookingservice.NewService(bookingservice.Params{
		Config:       config.Config{BookingHoldWindow: 30 * time.Minute},
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Repo:         bookingRepo,
		SlotRepo:     slotrepo.Provide(),
		OfferingRepo: offeringrepo.Provide(),
		Gateway:      fakeGateway{},
	})

	webhook := stripe.NewWebhook(testWebhookSecret)
	svc := paymentservice.NewService(paymentservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Webhook: webhook,
		Repo:    paymentrepo.Provide(),
		Booking: bookingSvc,
	})

	return &fixture{
		db:          db,
		node:        node,
		clk:         clk,
		webhook:     webhook,
		bookingRepo: bookingRepo,
		bookingSvc:  bookingSvc,
		svc:         svc,
	}
}

// seedPendingBooking creates a processing booking the way the API would,
// returning it with its payment intent recorded.
func (f *fixture) seedPendingBooking(t *testing.T) *bookingdomain.Booking {
	t.Helper()
	ctx := context.Background()

	expertID := f.node.Generate()
	offering := &offeringdomain.Offering{
		ID:              f.node.Generate(),
		ExpertID:        expertID,
		Title:           "Mock interview",
		DurationMinutes: 60,
		PriceAmount:     10000,
		Currency:        "USD",
		Active:          true,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
	if err := f.db.Create(offering).Error; err != nil {
		t.Fatalf("seed offering: %v", err)
	}
	window := &slotdomain.AvailabilityWindow{
		ID:        f.node.Generate(),
		ExpertID:  expertID,
		StartAt:   baseTime,
		EndAt:     baseTime.Add(120 * 24 * time.Hour),
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	if err := f.db.Create(window).Error; err != nil {
		t.Fatalf("seed window: %v", err)
	}
	slot := &slotdomain.TimeSlot{
		ID:          f.node.Generate(),
		OfferingID:  offering.ID,
		ExpertID:    expertID,
		StartAt:     baseTime.Add(48 * time.Hour),
		EndAt:       baseTime.Add(49 * time.Hour),
		MaxBookings: 1,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
	if err := f.db.Create(slot).Error; err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	resp, err := f.bookingSvc.Create(ctx, bookingdomain.CreateBookingRequest{
		LearnerID:  f.node.Generate(),
		OfferingID: offering.ID,
		SlotID:     slot.ID,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return resp.Booking
}

func (f *fixture) signedHeaders(payload []byte) http.Header {
	headers := http.Header{}
	headers.Set("Stripe-Signature", f.webhook.Sign(payload, f.clk.Now()))
	return headers
}

func (f *fixture) intentPayload(eventID, eventType, intentID string, bookingID snowflake.ID, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"%s","type":"%s","created":%d,"data":{"object":{"id":"%s","amount":%d,"amount_capturable":%d,"currency":"usd","created":%d,"metadata":{"booking_id":"%s"}}}}`,
		eventID, eventType, f.clk.Now().Unix(), intentID, amount, amount, f.clk.Now().Unix(), bookingID.String(),
	))
}

func (f *fixture) chargePayload(eventID, eventType, intentID string, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"%s","type":"%s","created":%d,"data":{"object":{"id":"ch_1","payment_intent":"%s","amount":%d,"amount_refunded":%d,"currency":"usd","created":%d}}}`,
		eventID, eventType, f.clk.Now().Unix(), intentID, amount, amount, f.clk.Now().Unix(),
	))
}

func (f *fixture) eventRow(t *testing.T, providerEventID string) *paymentdomain.EventRecord {
	t.Helper()
	record, err := paymentrepo.Provide().FindEvent(context.Background(), f.db, "stripe", providerEventID)
	if err != nil {
		t.Fatalf("find event: %v", err)
	}
	return record
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payload := f.intentPayload("evt_1", paymentdomain.EventAuthorizationSucceeded, "pi_1", 0, 10000)

	headers := http.Header{}
	headers.Set("Stripe-Signature", stripe.NewWebhook("whsec_wrong").Sign(payload, f.clk.Now()))

	err := f.svc.IngestWebhook(ctx, payload, headers)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	var count int64
	if err := f.db.Raw(`SELECT COUNT(*) FROM webhook_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no event rows for a rejected signature, got %d", count)
	}
}

func TestIngestWebhookRejectsStaleSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payload := f.intentPayload("evt_1", paymentdomain.EventAuthorizationSucceeded, "pi_1", 0, 10000)
	headers := http.Header{}
	headers.Set("Stripe-Signature", f.webhook.Sign(payload, f.clk.Now().Add(-10*time.Minute)))

	err := f.svc.IngestWebhook(ctx, payload, headers)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for a stale timestamp, got %v", err)
	}
}

func TestIngestWebhookAuthorizesBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking := f.seedPendingBooking(t)
	payload := f.intentPayload("evt_1", paymentdomain.EventAuthorizationSucceeded, booking.PaymentIntentID, booking.ID, 10000)

	if err := f.svc.IngestWebhook(ctx, payload, f.signedHeaders(payload)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	stored, err := f.bookingRepo.FindByID(ctx, f.db, booking.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload booking: %v", err)
	}
	if stored.Status != bookingdomain.StatusAwaitingApproval {
		t.Fatalf("expected awaiting_approval, got %s", stored.Status)
	}
	if stored.PaymentStatus != bookingdomain.PaymentAuthorized {
		t.Fatalf("expected authorized, got %s", stored.PaymentStatus)
	}

	record := f.eventRow(t, "evt_1")
	if record == nil {
		t.Fatalf("expected an event row")
	}
	if !record.Success {
		t.Fatalf("expected event recorded as success, got %+v", record)
	}
	if record.ProcessedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}
}

func TestIngestWebhookAuthorizesByIntentLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking := f.seedPendingBooking(t)
	// No booking_id metadata; the reconciler resolves via the intent reference.
	payload := f.intentPayload("evt_1", paymentdomain.EventAuthorizationSucceeded, booking.PaymentIntentID, 0, 10000)

	if err := f.svc.IngestWebhook(ctx, payload, f.signedHeaders(payload)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	stored, err := f.bookingRepo.FindByID(ctx, f.db, booking.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload booking: %v", err)
	}
	if stored.Status != bookingdomain.StatusAwaitingApproval {
		t.Fatalf("expected awaiting_approval, got %s", stored.Status)
	}
}

func TestIngestWebhookDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking := f.seedPendingBooking(t)
	payload := f.intentPayload("evt_1", paymentdomain.EventAuthorizationSucceeded, booking.PaymentIntentID, booking.ID, 10000)

	if err := f.svc.IngestWebhook(ctx, payload, f.signedHeaders(payload)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	err := f.svc.IngestWebhook(ctx, payload, f.signedHeaders(payload))
	if !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}

	var count int64
	if err := f.db.Raw(`SELECT COUNT(*) FROM webhook_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single event row, got %d", count)
	}
}

func TestIngestWebhookFailedEventIsReprocessed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking := f.seedPendingBooking(t)
	payload := f.intentPayload("evt_1", paymentdomain.EventAuthorizationSucceeded, booking.PaymentIntentID, booking.ID, 10000)

	// Simulate a delivery that was recorded but never handled successfully.
	if err := f.db.Exec(
		`INSERT INTO webhook_events (id, provider, provider_event_id, event_type, booking_id, payment_intent_id, payload, received_at, success, error_message)
		 VALUES (?, 'stripe', 'evt_1', ?, ?, ?, ?, ?, 0, 'connection reset')`,
		f.node.Generate(), paymentdomain.EventAuthorizationSucceeded, booking.ID,
		booking.PaymentIntentID, string(payload), f.clk.Now(),
	).Error; err != nil {
		t.Fatalf("seed failed event: %v", err)
	}

	if err := f.svc.IngestWebhook(ctx, payload, f.signedHeaders(payload)); err != nil {
		t.Fatalf("retry delivery: %v", err)
	}

	stored, err := f.bookingRepo.FindByID(ctx, f.db, booking.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload booking: %v", err)
	}
	if stored.Status != bookingdomain.StatusAwaitingApproval {
		t.Fatalf("expected the retry to apply the event, got %s", stored.Status)
	}

	record := f.eventRow(t, "evt_1")
	if record == nil || !record.Success {
		t.Fatalf("expected the event marked successful after retry, got %+v", record)
	}
}

func TestIngestWebhookUnknownTypeIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"invoice.created","created":%d,"data":{"object":{"id":"in_1"}}}`, f.clk.Now().Unix()))

	err := f.svc.IngestWebhook(ctx, payload, f.signedHeaders(payload))
	if !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestIngestWebhookOutOfOrderCapture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking := f.seedPendingBooking(t)

	// charge.succeeded lands while the booking is still pending. The guard
	// refuses the write and the event is acknowledged without a state change.
	payload := f.chargePayload("evt_1", paymentdomain.EventChargeSucceeded, booking.PaymentIntentID, 10000)
	if err := f.svc.IngestWebhook(ctx, payload, f.signedHeaders(payload)); err != nil {
		t.Fatalf("out-of-order capture: %v", err)
	}

	stored, err := f.bookingRepo.FindByID(ctx, f.db, booking.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload booking: %v", err)
	}
	if stored.PaymentStatus != bookingdomain.PaymentProcessing {
		t.Fatalf("expected payment untouched at processing, got %s", stored.PaymentStatus)
	}
}

func TestIngestWebhookUnknownIntentAcknowledged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payload := f.intentPayload("evt_1", paymentdomain.EventAuthorizationSucceeded, "pi_unknown", 0, 10000)

	// No booking matches; redelivery would never succeed, so the event is
	// acknowledged and parked instead of bounced back to the provider.
	if err := f.svc.IngestWebhook(ctx, payload, f.signedHeaders(payload)); err != nil {
		t.Fatalf("expected acknowledgement, got %v", err)
	}

	record := f.eventRow(t, "evt_1")
	if record == nil {
		t.Fatalf("expected an event row")
	}
	if !record.Success {
		t.Fatalf("expected the mismatch recorded as handled, got %+v", record)
	}
	if record.ErrorMessage == "" {
		t.Fatalf("expected the mismatch reason to be recorded")
	}
}

func TestIngestWebhookRefundSettlesCancelledBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking := f.seedPendingBooking(t)
	if _, err := f.bookingSvc.Authorize(ctx, booking.ID, booking.PaymentIntentID); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if _, err := f.bookingSvc.Approve(ctx, bookingdomain.ApproveRequest{
		BookingID:  booking.ID,
		ApproverID: booking.ExpertID,
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.bookingSvc.Cancel(ctx, bookingdomain.CancelRequest{
		BookingID:   booking.ID,
		CancellerID: booking.LearnerID,
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	payload := f.chargePayload("evt_1", paymentdomain.EventChargeRefunded, booking.PaymentIntentID, 10000)
	if err := f.svc.IngestWebhook(ctx, payload, f.signedHeaders(payload)); err != nil {
		t.Fatalf("refund event: %v", err)
	}

	stored, err := f.bookingRepo.FindByID(ctx, f.db, booking.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload booking: %v", err)
	}
	if stored.PaymentStatus != bookingdomain.PaymentRefunded {
		t.Fatalf("expected refunded, got %s", stored.PaymentStatus)
	}
	if stored.AmountRefunded != 10000 {
		t.Fatalf("expected amount_refunded 10000, got %d", stored.AmountRefunded)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE offerings (
			id INTEGER PRIMARY KEY,
			expert_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price_amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE availability_windows (
			id INTEGER PRIMARY KEY,
			expert_id INTEGER NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			closed BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE time_slots (
			id INTEGER PRIMARY KEY,
			offering_id INTEGER NOT NULL,
			expert_id INTEGER NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			max_bookings INTEGER NOT NULL,
			current_bookings INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE bookings (
			id INTEGER PRIMARY KEY,
			learner_id INTEGER NOT NULL,
			expert_id INTEGER NOT NULL,
			offering_id INTEGER NOT NULL,
			slot_id INTEGER NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			amount_authorized INTEGER NOT NULL,
			amount_captured INTEGER NOT NULL DEFAULT 0,
			amount_refunded INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			payment_intent_id TEXT NOT NULL DEFAULT '',
			held_until DATETIME NOT NULL,
			learner_notes TEXT NOT NULL DEFAULT '',
			expert_notes TEXT NOT NULL DEFAULT '',
			declined_reason TEXT NOT NULL DEFAULT '',
			cancelled_by TEXT NOT NULL DEFAULT '',
			cancellation_reason TEXT NOT NULL DEFAULT '',
			approved_at DATETIME,
			declined_at DATETIME,
			cancelled_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE webhook_events (
			id INTEGER PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			booking_id INTEGER NOT NULL DEFAULT 0,
			payment_intent_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '',
			received_at DATETIME NOT NULL,
			processed_at DATETIME,
			success BOOLEAN NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX uq_webhook_events_provider_event ON webhook_events (provider, provider_event_id)`,
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
