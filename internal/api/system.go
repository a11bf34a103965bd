package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/device"
	"github.com/benmeehan/gpio-agent/internal/models"
)

type syncReporter interface {
	Synced() bool
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	if !s.auth.IsEnabled() {
		writeError(w, http.StatusBadRequest, "authentication disabled")
		return
	}

	nonce, err := s.auth.IssueChallenge(clientAddr(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue challenge")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"nonce": nonce})
}

// handleSetup toggles authentication and serial debug. The key is generated
// and returned only when authentication goes from off to on.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request, body []byte) {
	var req models.SetupRequest
	if !decodeBody(w, body, &req) {
		return
	}
	if req.Auth == nil || req.SerialDebug == nil {
		writeError(w, http.StatusBadRequest, "missing parameters")
		return
	}

	if err := s.debug.Set(*req.SerialDebug); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist serial debug flag")
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}

	resp := models.SetupResponse{Auth: *req.Auth, SerialDebug: *req.SerialDebug}
	wasEnabled := s.auth.IsEnabled()

	switch {
	case *req.Auth && !wasEnabled:
		key, err := s.auth.GenerateKey()
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to generate authentication key")
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}
		if err := s.auth.Enable(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to enable authentication")
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}
		resp.AuthKey = key
		s.logger.Info().Msg("Authentication enabled")

	case !*req.Auth && wasEnabled:
		if err := s.auth.Disable(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to disable authentication")
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}
		s.logger.Info().Msg("Authentication disabled")
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, _ []byte) {
	status := s.status.Report(r.Context())
	status.Auth = s.auth.IsEnabled()
	status.SerialDebug = s.debug.Enabled()
	status.Time = s.clock.Now().Unix()
	if sr, ok := s.clock.(syncReporter); ok {
		status.ClockSynced = sr.Synced()
	}

	resp := models.StateResponse{
		Device:   status,
		CronJobs: make(map[string]models.CronJobView, constants.MaxCronJobs),
		Pins:     make(map[string]models.PinView, constants.MaxGPIOPins),
	}

	for i, job := range s.jobs.ListJobs() {
		resp.CronJobs[strconv.Itoa(i)] = jobView(job)
	}

	pins := s.pins.GetAll()
	for pin := uint8(0); pin <= constants.MaxDigitalPin; pin++ {
		if !device.IsValid(pin) {
			continue
		}
		resp.Pins[device.PinID(pin)] = models.PinView{
			Mode:         pins[pin].Mode.String(),
			State:        pins[pin].State,
			Capabilities: device.Capabilities(pin),
			Safety:       device.Safety(pin),
		}
	}

	a0 := models.PinView{Mode: models.PinAnalog.String(), Capabilities: device.Capabilities(constants.A0Index)}
	if value, err := s.pins.Read(constants.A0Index); err == nil {
		a0.State = value
	} else {
		s.logger.Warn().Err(err).Msg("Failed to read A0")
	}
	resp.Pins[device.PinID(constants.A0Index)] = a0

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReboot(w http.ResponseWriter, _ *http.Request, _ []byte) {
	writeJSON(w, http.StatusOK, map[string]bool{"rebooting": true})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	s.logger.Info().Msg("Rebooting on API request")
	time.AfterFunc(s.opts.RebootDelay, s.pins.Reboot)
}
