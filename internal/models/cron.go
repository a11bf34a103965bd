package models

import (
	"fmt"
	"strings"
)

// CronAction is what a job does when it fires.
type CronAction uint8

const (
	ActionSetPinState CronAction = iota
	ActionTogglePinState
	ActionHTTPRequest // reserved, never executed
	ActionReboot
)

// String returns the name used in API responses.
func (a CronAction) String() string {
	switch a {
	case ActionSetPinState:
		return "Set"
	case ActionTogglePinState:
		return "Toggle"
	case ActionHTTPRequest:
		return "HttpRequest"
	case ActionReboot:
		return "Reboot"
	default:
		return "Unknown"
	}
}

// TargetsPin reports whether the action needs a pin.
func (a CronAction) TargetsPin() bool {
	return a == ActionSetPinState || a == ActionTogglePinState
}

// ParseCronAction maps an API keyword (set, toggle, reboot) to an action.
// HttpRequest is reserved and cannot be requested.
func ParseCronAction(keyword string) (CronAction, error) {
	switch strings.ToLower(strings.TrimSpace(keyword)) {
	case "set":
		return ActionSetPinState, nil
	case "toggle":
		return ActionTogglePinState, nil
	case "reboot":
		return ActionReboot, nil
	default:
		return 0, fmt.Errorf("invalid action %q", keyword)
	}
}

// CronJob is one slot of the scheduler table.
type CronJob struct {
	Active         bool
	Expression     string
	Action         CronAction
	Pin            uint8
	Value          int32
	LastFiredEpoch uint32
}

// CronJobView is the API representation of a job slot.
type CronJobView struct {
	State     string `json:"state"`
	Cron      string `json:"cron"`
	Action    string `json:"action"`
	Pin       string `json:"pin"`
	Value     int32  `json:"value"`
	LastFired uint32 `json:"lastFired"`
}

// CronSetRequest is the body of PATCH /api/cron/set. ID is optional; when
// absent the first free slot is used.
type CronSetRequest struct {
	ID     *int   `json:"id"`
	Cron   string `json:"cron"`
	Action string `json:"action"`
	Pin    string `json:"pin"`
	Value  *int   `json:"value"`
}

// CronEvent describes one execution of a job.
type CronEvent struct {
	DeviceID   string `json:"device_id,omitempty"`
	Slot       int    `json:"slot"`
	Expression string `json:"cron"`
	Action     string `json:"action"`
	Pin        uint8  `json:"pin"`
	Value      int32  `json:"value"`
	FiredAt    uint32 `json:"fired_at"`
	Error      string `json:"error,omitempty"`
}
