package device

import (
	"fmt"
	"sync"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/models"
)

// Board is raw pin access. Implementations do no validation beyond what the
// hardware itself enforces.
type Board interface {
	Configure(pin uint8, mode models.PinMode) error
	DigitalWrite(pin uint8, high bool) error
	PWMWrite(pin uint8, duty int) error
	DigitalRead(pin uint8) (int, error)
	AnalogRead() (int, error)
}

// SimulatedBoard keeps pin levels in memory. Inputs read whatever was last
// injected with SetInput; outputs read back what was written.
type SimulatedBoard struct {
	mu     sync.Mutex
	modes  [constants.MaxGPIOPins]models.PinMode
	levels [constants.MaxGPIOPins]int
	analog int
}

// NewSimulatedBoard returns a board with every pin disabled and low.
func NewSimulatedBoard() *SimulatedBoard {
	return &SimulatedBoard{}
}

func (b *SimulatedBoard) check(pin uint8) error {
	if int(pin) >= constants.MaxGPIOPins {
		return fmt.Errorf("pin %d out of range", pin)
	}
	return nil
}

// Configure records the mode of pin. Pull-up inputs idle high.
func (b *SimulatedBoard) Configure(pin uint8, mode models.PinMode) error {
	if err := b.check(pin); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if mode == models.PinInputPullup && b.modes[pin] != models.PinInputPullup {
		b.levels[pin] = 1
	}
	b.modes[pin] = mode
	return nil
}

// DigitalWrite drives pin high or low.
func (b *SimulatedBoard) DigitalWrite(pin uint8, high bool) error {
	if err := b.check(pin); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.levels[pin] = 0
	if high {
		b.levels[pin] = 1
	}
	return nil
}

// PWMWrite sets the duty cycle of pin.
func (b *SimulatedBoard) PWMWrite(pin uint8, duty int) error {
	if err := b.check(pin); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.levels[pin] = duty
	return nil
}

// DigitalRead returns the level of pin, any non-zero level reads as 1.
func (b *SimulatedBoard) DigitalRead(pin uint8) (int, error) {
	if err := b.check(pin); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.levels[pin] != 0 {
		return 1, nil
	}
	return 0, nil
}

// AnalogRead returns the injected A0 value.
func (b *SimulatedBoard) AnalogRead() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.analog, nil
}

// SetInput injects the level an input pin will read.
func (b *SimulatedBoard) SetInput(pin uint8, level int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levels[pin] = level
}

// SetAnalog injects the A0 reading.
func (b *SimulatedBoard) SetAnalog(value int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analog = value
}

// Level returns the raw stored level of pin.
func (b *SimulatedBoard) Level(pin uint8) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[pin]
}

// Mode returns the last configured mode of pin.
func (b *SimulatedBoard) Mode(pin uint8) models.PinMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modes[pin]
}
