package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/pkg/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrUnsupportedMode is returned when a pin cannot take the requested mode.
	ErrUnsupportedMode = errors.New("mode not supported on pin")

	// ErrInvalidState is returned for a state outside the range of the mode.
	ErrInvalidState = errors.New("invalid pin state")
)

// Controller owns the cached configuration of every pin and applies changes
// to the Board. The whole table is persisted after every change.
type Controller struct {
	mu       sync.Mutex
	pins     [constants.MaxGPIOPins]models.PinConfig
	board    Board
	blobs    storage.BlobStore
	rebooter Rebooter
	logger   zerolog.Logger
}

// NewController returns a Controller. Call Initialize before use.
func NewController(board Board, blobs storage.BlobStore, rebooter Rebooter, logger zerolog.Logger) *Controller {
	return &Controller{
		board:    board,
		blobs:    blobs,
		rebooter: rebooter,
		logger:   logger,
	}
}

func defaultPins() [constants.MaxGPIOPins]models.PinConfig {
	var pins [constants.MaxGPIOPins]models.PinConfig
	for i := range pins {
		pins[i] = models.PinConfig{Pin: uint8(i), Mode: models.PinDisabled}
	}
	return pins
}

// Initialize restores the persisted pin table and applies it to the board.
// A missing or unreadable table leaves every pin disabled.
func (c *Controller) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pins = defaultPins()
	data, err := c.blobs.ReadBlob(constants.BlobGPIOTable)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.logger.Info().Msg("No GPIO state stored, all pins disabled")
	case err != nil:
		return fmt.Errorf("failed to read GPIO state: %w", err)
	default:
		pins, err := decodePins(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Discarding stored GPIO state")
		} else {
			c.pins = pins
		}
	}

	for i := range c.pins {
		if err := c.applyLocked(c.pins[i]); err != nil {
			c.logger.Warn().Err(err).Str("pin", PinID(uint8(i))).Msg("Failed to restore pin")
		}
	}
	return nil
}

// applyLocked pushes cfg to the board without validation.
func (c *Controller) applyLocked(cfg models.PinConfig) error {
	if IsAnalog(cfg.Pin) || !IsValid(cfg.Pin) {
		return nil
	}
	switch cfg.Mode {
	case models.PinOutput:
		if err := c.board.Configure(cfg.Pin, cfg.Mode); err != nil {
			return err
		}
		return c.board.DigitalWrite(cfg.Pin, cfg.State != 0)
	case models.PinPwm:
		if err := c.board.Configure(cfg.Pin, cfg.Mode); err != nil {
			return err
		}
		return c.board.PWMWrite(cfg.Pin, cfg.State)
	case models.PinInput, models.PinInputPullup:
		return c.board.Configure(cfg.Pin, cfg.Mode)
	default:
		return nil
	}
}

// Get returns the cached configuration of pin.
func (c *Controller) Get(pin uint8) (models.PinConfig, error) {
	if !IsAnalog(pin) && !IsValid(pin) {
		return models.PinConfig{}, ErrInvalidPin
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pins[pin], nil
}

// GetAll returns a copy of the pin table.
func (c *Controller) GetAll() [constants.MaxGPIOPins]models.PinConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pins
}

// Set validates cfg against the capabilities of its pin, applies it and
// persists the table. Inputs are read back so the returned State is the
// live level. A0 always becomes Analog with a fresh reading.
func (c *Controller) Set(cfg models.PinConfig) (models.PinConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if IsAnalog(cfg.Pin) {
		value, err := c.board.AnalogRead()
		if err != nil {
			return cfg, err
		}
		cfg = models.PinConfig{Pin: constants.A0Index, Mode: models.PinAnalog, State: value}
		c.pins[constants.A0Index] = cfg
		return cfg, c.persistLocked()
	}

	if err := validate(cfg, true); err != nil {
		return cfg, err
	}
	if cfg.Mode == models.PinOutput && cfg.State != 0 {
		cfg.State = 1
	}
	if err := c.applyLocked(cfg); err != nil {
		return cfg, err
	}
	if cfg.Mode == models.PinInput || cfg.Mode == models.PinInputPullup {
		level, err := c.board.DigitalRead(cfg.Pin)
		if err != nil {
			return cfg, err
		}
		cfg.State = level
	}

	c.pins[cfg.Pin] = cfg
	c.logger.Debug().Str("pin", PinID(cfg.Pin)).Str("mode", cfg.Mode.String()).Int("state", cfg.State).Msg("Pin updated")
	return cfg, c.persistLocked()
}

// validate checks cfg for a digital pin. Output on a pin that is not
// safe is only accepted when strictOutput is false.
func validate(cfg models.PinConfig, strictOutput bool) error {
	if !IsValid(cfg.Pin) {
		return ErrInvalidPin
	}
	switch cfg.Mode {
	case models.PinOutput:
		if strictOutput && !IsSafeOutput(cfg.Pin) {
			return fmt.Errorf("%w: %s is not a safe output", ErrUnsupportedMode, PinID(cfg.Pin))
		}
	case models.PinPwm:
		if !SupportsPWM(cfg.Pin) {
			return fmt.Errorf("%w: %s has no PWM", ErrUnsupportedMode, PinID(cfg.Pin))
		}
		if cfg.State < 0 || cfg.State > constants.MaxPWMValue {
			return fmt.Errorf("%w: PWM range 0-%d", ErrInvalidState, constants.MaxPWMValue)
		}
	case models.PinInputPullup:
		if !SupportsPullup(cfg.Pin) {
			return fmt.Errorf("%w: %s has no pull-up", ErrUnsupportedMode, PinID(cfg.Pin))
		}
	case models.PinInput:
	default:
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedMode, cfg.Mode, PinID(cfg.Pin))
	}
	return nil
}

// GetPin is Get for the cron scheduler.
func (c *Controller) GetPin(pin uint8) (models.PinConfig, error) {
	return c.Get(pin)
}

// SetPin is Set for the cron scheduler.
func (c *Controller) SetPin(cfg models.PinConfig) error {
	_, err := c.Set(cfg)
	return err
}

// ReplaceAll disables every pin, then applies configs. Pins not listed end
// up disabled. Invalid pins are skipped; an A0 entry turns the analog input
// on. Any other unsupported mode rejects the whole batch before the board
// is touched.
func (c *Controller) ReplaceAll(configs []models.PinConfig) error {
	for _, cfg := range configs {
		if IsAnalog(cfg.Pin) || !IsValid(cfg.Pin) || cfg.Mode == models.PinDisabled {
			continue
		}
		if err := validate(cfg, false); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.pins {
		pin := uint8(i)
		c.pins[i] = models.PinConfig{Pin: pin, Mode: models.PinDisabled}
		if IsValid(pin) {
			if err := c.board.Configure(pin, models.PinInput); err != nil {
				c.logger.Warn().Err(err).Str("pin", PinID(pin)).Msg("Failed to release pin")
			}
		}
	}

	for _, cfg := range configs {
		switch {
		case IsAnalog(cfg.Pin):
			value, err := c.board.AnalogRead()
			if err != nil {
				return err
			}
			c.pins[constants.A0Index] = models.PinConfig{Pin: constants.A0Index, Mode: models.PinAnalog, State: value}
			continue
		case !IsValid(cfg.Pin):
			continue
		}

		if cfg.Mode == models.PinOutput && cfg.State != 0 {
			cfg.State = 1
		}
		if err := c.applyLocked(cfg); err != nil {
			return err
		}
		c.pins[cfg.Pin] = cfg
	}

	c.logger.Info().Int("pins", len(configs)).Msg("GPIO configuration replaced")
	return c.persistLocked()
}

// Read returns the live level of pin, bypassing the cache.
func (c *Controller) Read(pin uint8) (int, error) {
	if IsAnalog(pin) {
		return c.board.AnalogRead()
	}
	if !IsValid(pin) {
		return 0, ErrInvalidPin
	}

	c.mu.Lock()
	mode := c.pins[pin].Mode
	c.mu.Unlock()

	switch mode {
	case models.PinOutput, models.PinInput, models.PinInputPullup:
		return c.board.DigitalRead(pin)
	default:
		return 0, fmt.Errorf("%w: cannot read %s pin", ErrUnsupportedMode, mode)
	}
}

// Refresh updates the cached state of inputs and of A0 from the board.
// The refreshed values are not persisted.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.pins {
		p := &c.pins[i]
		switch {
		case p.Mode == models.PinAnalog && IsAnalog(p.Pin):
			if value, err := c.board.AnalogRead(); err == nil {
				p.State = value
			}
		case p.Mode == models.PinInput || p.Mode == models.PinInputPullup:
			if level, err := c.board.DigitalRead(p.Pin); err == nil {
				p.State = level
			}
		}
	}
}

// Reboot restarts the agent.
func (c *Controller) Reboot() {
	c.rebooter.Reboot()
}

func (c *Controller) persistLocked() error {
	if err := c.blobs.WriteBlob(constants.BlobGPIOTable, encodePins(&c.pins)); err != nil {
		return fmt.Errorf("failed to persist GPIO state: %w", err)
	}
	return nil
}
