// Package stripe holds the outbound provider client and the inbound webhook
// codec. Authorizations use manual capture so funds are held, not settled,
// until the expert approves.
package stripe

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorlane/mentorlane/internal/config"
	paymentdomain "github.com/mentorlane/mentorlane/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
)

type Gateway struct{}

// NewGateway configures the provider client from config. The key is global in
// the provider SDK; one gateway per process.
func NewGateway(cfg config.Config) paymentdomain.Gateway {
	stripe.Key = cfg.StripeAPIKey
	return &Gateway{}
}

// Idempotency keys are deterministic per (operation, booking) so a retried
// call lands on the same provider-side request.
func idempotencyKey(op string, bookingID snowflake.ID) *string {
	key := fmt.Sprintf("%s:%s", op, bookingID.String())
	return &key
}

func (g *Gateway) Authorize(ctx context.Context, req paymentdomain.AuthorizeRequest) (*paymentdomain.ProviderRef, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: idempotencyKey("authorize", req.BookingID),
		},
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.AddMetadata("booking_id", req.BookingID.String())
	params.AddMetadata("learner_id", req.LearnerID.String())

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &paymentdomain.ProviderRef{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

func (g *Gateway) Capture(ctx context.Context, req paymentdomain.CaptureRequest) error {
	params := &stripe.PaymentIntentCaptureParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: idempotencyKey("capture", req.BookingID),
		},
		AmountToCapture: stripe.Int64(req.Amount),
	}
	_, err := paymentintent.Capture(req.PaymentIntentID, params)
	return err
}

func (g *Gateway) Void(ctx context.Context, req paymentdomain.VoidRequest) error {
	params := &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: idempotencyKey("void", req.BookingID),
		},
	}
	_, err := paymentintent.Cancel(req.PaymentIntentID, params)
	return err
}

func (g *Gateway) Refund(ctx context.Context, req paymentdomain.RefundRequest) error {
	// Partial refunds of the same booking must not collide on one key.
	key := fmt.Sprintf("refund:%s:%d", req.BookingID.String(), req.Amount)
	params := &stripe.RefundParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: &key,
		},
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Amount:        stripe.Int64(req.Amount),
	}
	_, err := refund.New(params)
	return err
}
