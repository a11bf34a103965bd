package device

import (
	"errors"
	"strconv"
	"strings"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/utils"
)

// ErrInvalidPin is returned for pin ids that do not name a usable pin.
var ErrInvalidPin = errors.New("invalid pin")

// Safety classes reported for each pin.
const (
	SafetySafe          = "Safe"
	SafetyBootSensitive = "BootSensitive"
	SafetyWarn          = "Warn"
)

// ESP8266 pin map. GPIO6-11 drive the SPI flash and are never usable.
var (
	digitalPins   = utils.SliceToSet([]uint8{0, 1, 2, 3, 4, 5, 12, 13, 14, 15, 16})
	safeOutputs   = utils.SliceToSet([]uint8{4, 5, 12, 13, 14})
	bootSensitive = utils.SliceToSet([]uint8{0, 2, 15})
)

// wakePin has no PWM and no pull-up.
const wakePin = 16

// IsValid reports whether pin is a usable digital GPIO.
func IsValid(pin uint8) bool {
	return utils.InSet(digitalPins, pin)
}

// IsAnalog reports whether pin is the A0 slot.
func IsAnalog(pin uint8) bool {
	return pin == constants.A0Index
}

// IsSafeOutput reports whether pin can drive an output without boot or UART
// side effects.
func IsSafeOutput(pin uint8) bool {
	return utils.InSet(safeOutputs, pin)
}

// IsBootSensitive reports whether the level of pin at reset selects the boot mode.
func IsBootSensitive(pin uint8) bool {
	return utils.InSet(bootSensitive, pin)
}

// SupportsPWM reports whether pin has PWM output.
func SupportsPWM(pin uint8) bool {
	return IsValid(pin) && pin != wakePin
}

// SupportsPullup reports whether pin has an internal pull-up.
func SupportsPullup(pin uint8) bool {
	return IsValid(pin) && pin != wakePin
}

// Safety returns the safety class of pin.
func Safety(pin uint8) string {
	switch {
	case IsSafeOutput(pin):
		return SafetySafe
	case IsBootSensitive(pin):
		return SafetyBootSensitive
	default:
		return SafetyWarn
	}
}

// Capabilities lists the modes pin can be put in.
func Capabilities(pin uint8) []string {
	if IsAnalog(pin) {
		return []string{"Analog"}
	}
	if !IsValid(pin) {
		return nil
	}
	caps := []string{"Input"}
	if SupportsPullup(pin) {
		caps = append(caps, "InputPullup")
	}
	caps = append(caps, "Output")
	if SupportsPWM(pin) {
		caps = append(caps, "Pwm")
	}
	return caps
}

// ParsePinID accepts "GPIOn", "n" or "A0" in any case and returns the table
// index of the pin.
func ParsePinID(id string) (uint8, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "A0" {
		return constants.A0Index, nil
	}
	id = strings.TrimPrefix(id, "GPIO")
	if id == "" || strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, ErrInvalidPin
	}

	n, err := strconv.Atoi(id)
	if err != nil || n > constants.MaxDigitalPin || !IsValid(uint8(n)) {
		return 0, ErrInvalidPin
	}
	return uint8(n), nil
}

// PinID returns the API name of a table index.
func PinID(pin uint8) string {
	if IsAnalog(pin) {
		return "A0"
	}
	return "GPIO" + strconv.Itoa(int(pin))
}
