package payment

import (
	"github.com/mentorlane/mentorlane/internal/config"
	"github.com/mentorlane/mentorlane/internal/payment/gateway/stripe"
	"github.com/mentorlane/mentorlane/internal/payment/repository"
	"github.com/mentorlane/mentorlane/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.NewGateway),
	fx.Provide(func(cfg config.Config) *stripe.Webhook {
		return stripe.NewWebhook(cfg.StripeWebhookSecret)
	}),
	fx.Provide(service.NewService),
)
