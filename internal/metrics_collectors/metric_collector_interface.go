package metrics_collectors

import (
	"context"

	"github.com/benmeehan/gpio-agent/internal/models"
)

// MetricCollector fills one part of the device status from the host.
type MetricCollector interface {
	Name() string                                                   // Name of the collector (e.g., "cpu", "memory")
	Collect(ctx context.Context, status *models.DeviceStatus) error // Write the collected values into status
	IsEnabled(config *models.StatusConfig) bool                     // Check if the collector is enabled in the config
}
