package metrics_collectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
)

// CPUMetricCollector reports CPU usage since the previous call.
type CPUMetricCollector struct {
	Logger zerolog.Logger
}

func (c *CPUMetricCollector) Name() string {
	return "cpu"
}

func (c *CPUMetricCollector) Collect(ctx context.Context, status *models.DeviceStatus) error {
	cpuPercentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("failed to get CPU usage: %w", err)
	}
	if len(cpuPercentages) == 0 {
		return errors.New("CPU usage data is empty")
	}

	status.CPUPercent = cpuPercentages[0]
	c.Logger.Debug().Float64("cpu_usage", cpuPercentages[0]).Msg("CPU usage collected")
	return nil
}

func (c *CPUMetricCollector) IsEnabled(config *models.StatusConfig) bool {
	return config.MonitorCPU
}
