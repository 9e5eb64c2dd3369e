package offering

import (
	"github.com/mentorlane/mentorlane/internal/offering/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("offering.service",
	fx.Provide(repository.Provide),
)
