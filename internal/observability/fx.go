package observability

import (
	"github.com/mentorlane/mentorlane/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module wires the prometheus registry and application instruments.
var Module = fx.Module("observability",
	fx.Provide(
		provideRegistry,
		provideRegisterer,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
)

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideRegisterer(reg *prometheus.Registry) prometheus.Registerer {
	return reg
}
