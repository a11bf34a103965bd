package device

import (
	"encoding/binary"
	"fmt"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/models"
)

// Pin record: [0] pin, [1] mode, [2:4] reserved, [4:8] state int32 LE.
const (
	pinRecordSize = 8
	pinTableSize  = pinRecordSize * constants.MaxGPIOPins
)

func encodePins(pins *[constants.MaxGPIOPins]models.PinConfig) []byte {
	buf := make([]byte, pinTableSize)
	for i := range pins {
		rec := buf[i*pinRecordSize : (i+1)*pinRecordSize]
		rec[0] = pins[i].Pin
		rec[1] = byte(pins[i].Mode)
		binary.LittleEndian.PutUint32(rec[4:8], uint32(int32(pins[i].State)))
	}
	return buf
}

func decodePins(data []byte) ([constants.MaxGPIOPins]models.PinConfig, error) {
	var pins [constants.MaxGPIOPins]models.PinConfig
	if len(data) != pinTableSize {
		return pins, fmt.Errorf("pin table has %d bytes, want %d", len(data), pinTableSize)
	}
	for i := range pins {
		rec := data[i*pinRecordSize : (i+1)*pinRecordSize]
		if rec[1] > byte(models.PinAnalog) {
			return pins, fmt.Errorf("pin %d has unknown mode %d", i, rec[1])
		}
		pins[i] = models.PinConfig{
			Pin:   uint8(i),
			Mode:  models.PinMode(rec[1]),
			State: int(int32(binary.LittleEndian.Uint32(rec[4:8]))),
		}
	}
	return pins, nil
}
