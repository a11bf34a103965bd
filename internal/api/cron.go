package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/cron"
	"github.com/benmeehan/gpio-agent/internal/device"
	"github.com/benmeehan/gpio-agent/internal/models"
)

func jobView(job models.CronJob) models.CronJobView {
	state := "Disabled"
	if job.Active {
		state = "Active"
	}
	return models.CronJobView{
		State:     state,
		Cron:      job.Expression,
		Action:    job.Action.String(),
		Pin:       device.PinID(job.Pin),
		Value:     job.Value,
		LastFired: job.LastFiredEpoch,
	}
}

// jobIndex parses the id query parameter. It writes the error itself.
func jobIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 || id >= constants.MaxCronJobs {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// handleCronSet validates the whole request before touching the table. With
// an id the slot is overwritten, otherwise the first free slot is taken.
func (s *Server) handleCronSet(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req models.CronSetRequest
	if !decodeBody(w, body, &req) {
		return
	}
	if req.Cron == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "missing cron or action")
		return
	}
	if err := cron.Validate(req.Cron); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	action, err := models.ParseCronAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid action")
		return
	}

	job := models.CronJob{Expression: req.Cron, Action: action}
	if action.TargetsPin() {
		if req.Pin == "" {
			writeError(w, http.StatusBadRequest, "missing pin")
			return
		}
		pin, err := device.ParsePinID(req.Pin)
		if err != nil || device.IsAnalog(pin) {
			writeError(w, http.StatusBadRequest, "invalid pin")
			return
		}
		job.Pin = pin
		if req.Value != nil {
			if *req.Value < 0 || *req.Value > constants.MaxPWMValue {
				writeError(w, http.StatusBadRequest, "value must be 0-255")
				return
			}
			job.Value = int32(*req.Value)
		}
	}

	var id int
	if req.ID != nil {
		id = *req.ID
		if id < 0 || id >= constants.MaxCronJobs {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		err = s.jobs.UpsertJob(id, job)
	} else {
		id, err = s.jobs.AddJob(job)
	}

	switch {
	case errors.Is(err, cron.ErrNoFreeSlot):
		writeError(w, http.StatusBadRequest, "no free job slot")
		return
	case errors.Is(err, cron.ErrInvalidExpression), errors.Is(err, cron.ErrInvalidAction), errors.Is(err, cron.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Int("slot", id).Msg("Failed to save cron job")
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}

	s.logger.Info().Int("slot", id).Str("cron", job.Expression).Str("action", action.String()).Msg("Cron job stored")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) handleGetCron(w http.ResponseWriter, r *http.Request, _ []byte) {
	id, ok := jobIndex(w, r)
	if !ok {
		return
	}
	job, found := s.jobs.GetJob(id)
	if !found {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

func (s *Server) handleDeleteCron(w http.ResponseWriter, r *http.Request, _ []byte) {
	id, ok := jobIndex(w, r)
	if !ok {
		return
	}
	if err := s.jobs.DeactivateJob(id); err != nil {
		s.logger.Error().Err(err).Int("slot", id).Msg("Failed to delete cron job")
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	writeSuccess(w)
}

func (s *Server) handleClearCron(w http.ResponseWriter, _ *http.Request, _ []byte) {
	if err := s.jobs.DeactivateAll(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear cron jobs")
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	writeSuccess(w)
}
