package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/mentorlane/mentorlane/internal/payment/domain"
)

// signatureTolerance bounds timestamp skew on the signed header; older
// signatures are treated as replays.
const signatureTolerance = 5 * time.Minute

// Webhook verifies and decodes inbound provider events.
type Webhook struct {
	secret string
}

func NewWebhook(secret string) *Webhook {
	return &Webhook{secret: strings.TrimSpace(secret)}
}

// Verify checks the Stripe-Signature header (t=...,v1=... format) against the
// shared secret. No state changes on failure.
func (w *Webhook) Verify(payload []byte, headers http.Header, now time.Time) error {
	if w.secret == "" {
		return paymentdomain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew > signatureTolerance || skew < -signatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(w.secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

// Sign builds a valid Stripe-Signature header for the payload. Used by tests
// and local tooling.
func (w *Webhook) Sign(payload []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(w.secret))
	_, _ = mac.Write([]byte(timestamp + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

// Parse reduces a provider payload to the canonical event. Unknown types are
// reported as ErrEventIgnored so the caller can acknowledge without acting.
func (w *Webhook) Parse(payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Type) {
	case paymentdomain.EventAuthorizationSucceeded,
		paymentdomain.EventPaymentFailed,
		paymentdomain.EventAuthorizationCancelled:
		return parseIntentEvent(event)
	case paymentdomain.EventChargeSucceeded,
		paymentdomain.EventChargeRefunded,
		paymentdomain.EventDisputeCreated:
		return parseChargeEvent(event)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountCapturable int64             `json:"amount_capturable"`
	Currency         string            `json:"currency"`
	Created          int64             `json:"created"`
	Metadata         map[string]string `json:"metadata"`
}

type stripeCharge struct {
	ID             string            `json:"id"`
	PaymentIntent  string            `json:"payment_intent"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	Created        int64             `json:"created"`
	Metadata       map[string]string `json:"metadata"`
}

func parseIntentEvent(event stripeEvent) (*paymentdomain.PaymentEvent, error) {
	var intent stripeIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	amount := intent.Amount
	if event.Type == paymentdomain.EventAuthorizationSucceeded && intent.AmountCapturable > 0 {
		amount = intent.AmountCapturable
	}
	return &paymentdomain.PaymentEvent{
		ProviderEventID: event.ID,
		Type:            strings.TrimSpace(event.Type),
		PaymentIntentID: intent.ID,
		BookingID:       metadataBookingID(intent.Metadata),
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:      eventTime(intent.Created, event.Created),
	}, nil
}

func parseChargeEvent(event stripeEvent) (*paymentdomain.PaymentEvent, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(charge.PaymentIntent) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	amount := charge.Amount
	if event.Type == paymentdomain.EventChargeRefunded && charge.AmountRefunded > 0 {
		amount = charge.AmountRefunded
	}
	return &paymentdomain.PaymentEvent{
		ProviderEventID: event.ID,
		Type:            strings.TrimSpace(event.Type),
		PaymentIntentID: charge.PaymentIntent,
		BookingID:       metadataBookingID(charge.Metadata),
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(charge.Currency)),
		OccurredAt:      eventTime(charge.Created, event.Created),
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func eventTime(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func metadataBookingID(metadata map[string]string) snowflake.ID {
	raw := strings.TrimSpace(metadata["booking_id"])
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}
