package metrics_collectors

import (
	"context"

	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/rs/zerolog"
)

// MetricsRegistry runs the enabled collectors in registration order.
type MetricsRegistry struct {
	collectors []MetricCollector
	config     *models.StatusConfig
	logger     zerolog.Logger
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry(config *models.StatusConfig, logger zerolog.Logger) *MetricsRegistry {
	return &MetricsRegistry{config: config, logger: logger}
}

// NewDefaultRegistry registers the host, memory, cpu and network collectors.
func NewDefaultRegistry(config *models.StatusConfig, logger zerolog.Logger) *MetricsRegistry {
	r := NewMetricsRegistry(config, logger)
	r.Register(&HostMetricCollector{Logger: logger})
	r.Register(&MemoryMetricCollector{Logger: logger})
	r.Register(&CPUMetricCollector{Logger: logger})
	r.Register(&NetworkMetricCollector{Logger: logger})
	return r
}

// Register adds a collector.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors = append(r.collectors, collector)
}

// GetCollectors returns the registered collectors.
func (r *MetricsRegistry) GetCollectors() []MetricCollector {
	return r.collectors
}

// CollectAll runs every enabled collector against status. A failing
// collector is logged and skipped.
func (r *MetricsRegistry) CollectAll(ctx context.Context, status *models.DeviceStatus) {
	for _, c := range r.collectors {
		if !c.IsEnabled(r.config) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return
		}
		if err := c.Collect(ctx, status); err != nil {
			r.logger.Warn().Err(err).Str("collector", c.Name()).Msg("Status collector failed")
		}
	}
}
