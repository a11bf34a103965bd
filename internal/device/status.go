package device

import (
	"context"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/models"
)

// StatusCollector adds host figures to a status report.
type StatusCollector interface {
	CollectAll(ctx context.Context, status *models.DeviceStatus)
}

// StatusReporter builds the device section of the state report.
type StatusReporter struct {
	deviceID  string
	started   time.Time
	collector StatusCollector
}

// NewStatusReporter returns a reporter for deviceID. collector may be nil.
func NewStatusReporter(deviceID string, collector StatusCollector) *StatusReporter {
	return &StatusReporter{
		deviceID:  deviceID,
		started:   time.Now(),
		collector: collector,
	}
}

// Report returns the model, id, version and agent uptime plus whatever the
// collector adds.
func (r *StatusReporter) Report(ctx context.Context) models.DeviceStatus {
	status := models.DeviceStatus{
		Device:   constants.DeviceModel,
		DeviceID: r.deviceID,
		Version:  constants.FirmwareVersion().String(),
		Uptime:   uint64(time.Since(r.started).Seconds()),
	}
	if r.collector != nil {
		r.collector.CollectAll(ctx, &status)
	}
	return status
}
