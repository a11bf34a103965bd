package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/device"
	"github.com/benmeehan/gpio-agent/internal/models"
)

func (s *Server) handleGetPin(w http.ResponseWriter, r *http.Request, _ []byte) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing pin")
		return
	}
	pin, err := device.ParsePinID(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pin")
		return
	}

	view := models.PinView{ID: device.PinID(pin)}
	if device.IsAnalog(pin) {
		value, err := s.pins.Read(pin)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to read A0")
			writeError(w, http.StatusInternalServerError, "read failed")
			return
		}
		view.Mode = models.PinAnalog.String()
		view.State = value
	} else {
		cfg, err := s.pins.Get(pin)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pin")
			return
		}
		view.Mode = cfg.Mode.String()
		view.State = cfg.State
	}
	writeJSON(w, http.StatusOK, view)
}

// checkState validates a requested state for mode.
func checkState(pin uint8, mode models.PinMode, state int) string {
	if mode == models.PinPwm {
		if !device.SupportsPWM(pin) || state < 0 || state > constants.MaxPWMValue {
			return "PWM range 0-255"
		}
		return ""
	}
	if state != 0 && state != 1 {
		return "digital value must be 0 or 1"
	}
	return ""
}

// handleConfig replaces the whole GPIO configuration. Pins missing from
// the body end up disabled.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request, body []byte) {
	var entries map[string]models.PinConfigEntry
	if !decodeBody(w, body, &entries) {
		return
	}
	if len(entries) > constants.MaxGPIOPins {
		writeError(w, http.StatusBadRequest, "too many pins")
		return
	}

	seen := make(map[uint8]struct{}, len(entries))
	configs := make([]models.PinConfig, 0, len(entries))
	for key, entry := range entries {
		pin, err := device.ParsePinID(key)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pin id")
			return
		}
		if _, dup := seen[pin]; dup {
			writeError(w, http.StatusBadRequest, "duplicate pin "+device.PinID(pin))
			return
		}
		seen[pin] = struct{}{}

		if entry.Mode == nil {
			writeError(w, http.StatusBadRequest, "missing mode")
			return
		}
		mode, ok := models.ParsePinMode(*entry.Mode)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid mode")
			return
		}

		if device.IsAnalog(pin) {
			if mode != models.PinAnalog {
				writeError(w, http.StatusBadRequest, "A0 only supports Analog")
				return
			}
			configs = append(configs, models.PinConfig{Pin: pin, Mode: mode})
			continue
		}
		if mode == models.PinAnalog {
			writeError(w, http.StatusBadRequest, "mode not supported on "+device.PinID(pin))
			return
		}

		state := 0
		if entry.State != nil {
			state = *entry.State
		}
		if msg := checkState(pin, mode, state); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		configs = append(configs, models.PinConfig{Pin: pin, Mode: mode, State: state})
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Pin < configs[j].Pin })

	if err := s.pins.ReplaceAll(configs); err != nil {
		if isPinValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("Failed to replace GPIO configuration")
		writeJSON(w, http.StatusInternalServerError, map[string]bool{"success": false})
		return
	}
	writeSuccess(w)
}

// handlePatchPin changes the mode and/or state of one pin, keeping what the
// request leaves out.
func (s *Server) handlePatchPin(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req models.PinPatchRequest
	if !decodeBody(w, body, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	pin, err := device.ParsePinID(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pin")
		return
	}
	if device.IsAnalog(pin) && req.State != nil {
		writeError(w, http.StatusBadRequest, "cannot set state on A0")
		return
	}

	cfg, err := s.pins.Get(pin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.Mode != nil {
		mode, ok := models.ParsePinMode(*req.Mode)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid mode")
			return
		}
		if device.IsAnalog(pin) && mode != models.PinAnalog {
			writeError(w, http.StatusBadRequest, "A0 only supports Analog")
			return
		}
		if !device.IsAnalog(pin) && (mode == models.PinAnalog ||
			(mode == models.PinInputPullup && !device.SupportsPullup(pin)) ||
			(mode == models.PinPwm && !device.SupportsPWM(pin))) {
			writeError(w, http.StatusBadRequest, "mode not supported on "+device.PinID(pin))
			return
		}
		cfg.Mode = mode
	}

	if req.State != nil {
		if msg := checkState(pin, cfg.Mode, *req.State); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		cfg.State = *req.State
	}

	applied, err := s.pins.Set(cfg)
	if err != nil {
		if isPinValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Str("pin", device.PinID(pin)).Msg("Failed to apply pin")
		writeError(w, http.StatusInternalServerError, "apply failed")
		return
	}

	writeJSON(w, http.StatusOK, models.PinView{
		ID:    req.ID,
		Mode:  applied.Mode.String(),
		State: applied.State,
	})
}

func isPinValidation(err error) bool {
	return errors.Is(err, device.ErrInvalidPin) ||
		errors.Is(err, device.ErrUnsupportedMode) ||
		errors.Is(err, device.ErrInvalidState)
}
