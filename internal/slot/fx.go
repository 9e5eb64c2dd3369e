package slot

import (
	"github.com/mentorlane/mentorlane/internal/slot/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("slot.service",
	fx.Provide(repository.Provide),
)
