package metrics_collectors

import (
	"context"
	"fmt"

	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/mem"
)

// MemoryMetricCollector reports the percentage of used virtual memory.
type MemoryMetricCollector struct {
	Logger zerolog.Logger
}

// Name returns the identifier for the memory collector.
func (m *MemoryMetricCollector) Name() string {
	return "memory"
}

// Collect stores the used virtual memory percentage.
func (m *MemoryMetricCollector) Collect(ctx context.Context, status *models.DeviceStatus) error {
	memStats, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("failed to retrieve memory statistics: %w", err)
	}

	status.MemoryUsedPercent = memStats.UsedPercent
	m.Logger.Debug().Float64("memory_usage_percent", memStats.UsedPercent).Msg("Memory usage collected")
	return nil
}

// IsEnabled checks if memory monitoring is enabled in the configuration.
func (m *MemoryMetricCollector) IsEnabled(config *models.StatusConfig) bool {
	return config.MonitorMemory
}
