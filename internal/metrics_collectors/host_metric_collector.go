package metrics_collectors

import (
	"context"
	"fmt"

	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"
)

// HostMetricCollector reports the host name and how long the host has been up.
type HostMetricCollector struct {
	Logger zerolog.Logger
}

func (h *HostMetricCollector) Name() string {
	return "host"
}

func (h *HostMetricCollector) Collect(ctx context.Context, status *models.DeviceStatus) error {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve host info: %w", err)
	}

	status.Hostname = info.Hostname
	status.HostUptime = info.Uptime
	h.Logger.Debug().Str("hostname", info.Hostname).Uint64("host_uptime", info.Uptime).Msg("Host info collected")
	return nil
}

func (h *HostMetricCollector) IsEnabled(config *models.StatusConfig) bool {
	return config.MonitorHost
}
