package models

// DeviceStatus is the "device" section of GET /api/state.
type DeviceStatus struct {
	Device            string  `json:"device"`
	DeviceID          string  `json:"id"`
	Version           string  `json:"version"`
	Hostname          string  `json:"hostname,omitempty"`
	IP                string  `json:"ip,omitempty"`
	Auth              bool    `json:"auth"`
	SerialDebug       bool    `json:"serialDebug"`
	Uptime            uint64  `json:"uptime"`
	HostUptime        uint64  `json:"hostUptime,omitempty"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent,omitempty"`
	CPUPercent        float64 `json:"cpuPercent,omitempty"`
	ClockSynced       bool    `json:"clockSynced"`
	Time              int64   `json:"time"`
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	Device   DeviceStatus           `json:"device"`
	CronJobs map[string]CronJobView `json:"cronJobs"`
	Pins     map[string]PinView     `json:"pins"`
}

// SetupRequest is the body of POST /api/setup.
type SetupRequest struct {
	Auth        *bool `json:"auth"`
	SerialDebug *bool `json:"serialDebug"`
}

// SetupResponse is returned by POST /api/setup. AuthKey is only set in the
// response that turns authentication on.
type SetupResponse struct {
	Auth        bool   `json:"auth"`
	SerialDebug bool   `json:"serialDebug"`
	AuthKey     string `json:"authKey,omitempty"`
}
