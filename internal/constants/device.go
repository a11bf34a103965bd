package constants

const (
	// MaxGPIOPins covers GPIO0..GPIO16 plus the A0 slot.
	MaxGPIOPins = 18

	// MaxDigitalPin is the highest digital GPIO number.
	MaxDigitalPin = 16

	// A0Index is the table slot of the analog input.
	A0Index = 17

	// MaxPWMValue is the largest accepted PWM duty value.
	MaxPWMValue = 255

	// DeviceModel is reported in the device status.
	DeviceModel = "ESP8266"
)

// Device status values published on heartbeats.
const (
	StatusAlive = "alive"
)
