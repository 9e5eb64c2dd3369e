package stripe

import (
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/mentorlane/mentorlane/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verifyTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func signedHeaders(w *Webhook, payload []byte, at time.Time) http.Header {
	headers := http.Header{}
	headers.Set("Stripe-Signature", w.Sign(payload, at))
	return headers
}

func TestVerify(t *testing.T) {
	w := NewWebhook("whsec_test")
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)

	t.Run("accepts a freshly signed payload", func(t *testing.T) {
		err := w.Verify(payload, signedHeaders(w, payload, verifyTime), verifyTime)
		assert.NoError(t, err)
	})

	t.Run("accepts skew inside the tolerance", func(t *testing.T) {
		err := w.Verify(payload, signedHeaders(w, payload, verifyTime.Add(-4*time.Minute)), verifyTime)
		assert.NoError(t, err)
	})

	t.Run("rejects a tampered payload", func(t *testing.T) {
		headers := signedHeaders(w, payload, verifyTime)
		err := w.Verify([]byte(`{"id":"evt_2"}`), headers, verifyTime)
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	})

	t.Run("rejects the wrong secret", func(t *testing.T) {
		other := NewWebhook("whsec_other")
		err := w.Verify(payload, signedHeaders(other, payload, verifyTime), verifyTime)
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	})

	t.Run("rejects a stale timestamp", func(t *testing.T) {
		err := w.Verify(payload, signedHeaders(w, payload, verifyTime.Add(-6*time.Minute)), verifyTime)
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		err := w.Verify(payload, http.Header{}, verifyTime)
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	})

	t.Run("rejects a malformed header", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Stripe-Signature", "not-a-signature")
		err := w.Verify(payload, headers, verifyTime)
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	})

	t.Run("rejects when no secret is configured", func(t *testing.T) {
		empty := NewWebhook("")
		err := empty.Verify(payload, signedHeaders(w, payload, verifyTime), verifyTime)
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	})
}

func TestParseIntentEvent(t *testing.T) {
	w := NewWebhook("whsec_test")

	payload := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.amount_capturable_updated",
		"created": 1770000000,
		"data": {"object": {
			"id": "pi_123",
			"amount": 10000,
			"amount_capturable": 9500,
			"currency": "usd",
			"metadata": {"booking_id": "1234567890"}
		}}
	}`)

	event, err := w.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ProviderEventID)
	assert.Equal(t, paymentdomain.EventAuthorizationSucceeded, event.Type)
	assert.Equal(t, "pi_123", event.PaymentIntentID)
	assert.Equal(t, int64(1234567890), int64(event.BookingID))
	assert.Equal(t, int64(9500), event.Amount, "capturable amount wins for authorization events")
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, time.Unix(1770000000, 0).UTC(), event.OccurredAt)
}

func TestParseChargeEvent(t *testing.T) {
	w := NewWebhook("whsec_test")

	payload := []byte(`{
		"id": "evt_2",
		"type": "charge.refunded",
		"created": 1770000000,
		"data": {"object": {
			"id": "ch_1",
			"payment_intent": "pi_123",
			"amount": 10000,
			"amount_refunded": 5000,
			"currency": "usd"
		}}
	}`)

	event, err := w.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventChargeRefunded, event.Type)
	assert.Equal(t, "pi_123", event.PaymentIntentID)
	assert.Equal(t, int64(5000), event.Amount, "refunded amount wins for refund events")
}

func TestParseRejects(t *testing.T) {
	w := NewWebhook("whsec_test")

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"unknown event type", `{"id":"evt_1","type":"invoice.created","data":{"object":{}}}`, paymentdomain.ErrEventIgnored},
		{"not json", `{{{`, paymentdomain.ErrInvalidPayload},
		{"missing event id", `{"type":"charge.succeeded","data":{"object":{}}}`, paymentdomain.ErrInvalidPayload},
		{"intent without id", `{"id":"evt_1","type":"payment_intent.canceled","data":{"object":{"amount":100}}}`, paymentdomain.ErrInvalidPayload},
		{"charge without intent", `{"id":"evt_1","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`, paymentdomain.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Parse([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseIgnoresBadBookingMetadata(t *testing.T) {
	w := NewWebhook("whsec_test")

	payload := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.canceled",
		"data": {"object": {"id": "pi_123", "metadata": {"booking_id": "not-a-number"}}}
	}`)

	event, err := w.Parse(payload)
	require.NoError(t, err)
	assert.Zero(t, event.BookingID)
}
