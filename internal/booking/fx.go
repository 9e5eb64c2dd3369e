package booking

import (
	"github.com/mentorlane/mentorlane/internal/booking/repository"
	"github.com/mentorlane/mentorlane/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
