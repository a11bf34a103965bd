package models

import "time"

// Heartbeat represents the structure for a device heartbeat event.
type Heartbeat struct {
	DeviceID   string    `json:"device_id"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Uptime     uint64    `json:"uptime"`
	Auth       bool      `json:"auth"`
	ActiveJobs int       `json:"active_jobs"`
}
