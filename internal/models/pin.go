package models

import "strings"

// PinMode is the runtime role of a GPIO pin.
type PinMode uint8

const (
	PinDisabled PinMode = iota
	PinInput
	PinInputPullup
	PinOutput
	PinPwm
	PinAnalog
)

// String returns the name used in API responses.
func (m PinMode) String() string {
	switch m {
	case PinInput:
		return "Input"
	case PinInputPullup:
		return "InputPullup"
	case PinOutput:
		return "Output"
	case PinPwm:
		return "Pwm"
	case PinAnalog:
		return "Analog"
	default:
		return "Disabled"
	}
}

// ParsePinMode maps a case-insensitive mode name to a PinMode.
func ParsePinMode(name string) (PinMode, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "disabled":
		return PinDisabled, true
	case "input":
		return PinInput, true
	case "inputpullup":
		return PinInputPullup, true
	case "output":
		return PinOutput, true
	case "pwm":
		return PinPwm, true
	case "analog":
		return PinAnalog, true
	default:
		return PinDisabled, false
	}
}

// PinConfig is the cached configuration and last known state of a pin.
// State is the written level for Output/Pwm and the last reading for inputs.
type PinConfig struct {
	Pin   uint8
	Mode  PinMode
	State int
}

// PinView is the API representation of a pin.
type PinView struct {
	ID           string   `json:"id,omitempty"`
	Mode         string   `json:"mode"`
	State        int      `json:"state"`
	Capabilities []string `json:"capabilities,omitempty"`
	Safety       string   `json:"safety,omitempty"`
}

// PinPatchRequest is the body of PATCH /api/pin/set.
type PinPatchRequest struct {
	ID    string  `json:"id"`
	Mode  *string `json:"mode"`
	State *int    `json:"state"`
}

// PinConfigEntry is one value of the POST /api/config body, keyed by pin id.
type PinConfigEntry struct {
	Mode  *string `json:"mode"`
	State *int    `json:"state"`
}
