package cron

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/pkg/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidSlot is returned for a job index outside the table.
	ErrInvalidSlot = errors.New("invalid job slot")

	// ErrNoFreeSlot is returned by AddJob when every slot is active.
	ErrNoFreeSlot = errors.New("no free job slot")

	// ErrInvalidAction is returned for an action a job cannot carry.
	ErrInvalidAction = errors.New("invalid cron action")
)

// Actuator applies job actions to the device.
type Actuator interface {
	GetPin(pin uint8) (models.PinConfig, error)
	SetPin(cfg models.PinConfig) error
	Reboot()
}

// FailureHook is called after a job fired but its pin action failed.
// consecutive counts failures of that slot since its last success.
type FailureHook func(slot int, job models.CronJob, consecutive uint32, err error)

// FireHook is called once for every job that fired, err is the action error.
type FireHook func(slot int, job models.CronJob, err error)

// Scheduler owns the job table and runs due jobs on every Tick.
type Scheduler struct {
	mu       sync.Mutex
	jobs     [constants.MaxCronJobs]models.CronJob
	failures [constants.MaxCronJobs]uint32

	blobs     storage.BlobStore
	actuator  Actuator
	location  *time.Location
	window    uint32
	onFailure FailureHook
	onFire    FireHook
	logger    zerolog.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the timezone used to decompose the wall clock.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithWindow overrides constants.CronExecWindowSec.
func WithWindow(seconds uint32) Option {
	return func(s *Scheduler) { s.window = seconds }
}

// NewScheduler returns a Scheduler with an empty table. Call Initialize to
// load the persisted jobs.
func NewScheduler(blobs storage.BlobStore, actuator Actuator, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		blobs:    blobs,
		actuator: actuator,
		location: time.UTC,
		window:   constants.CronExecWindowSec,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFailureHook registers fn for pin action failures.
func (s *Scheduler) SetFailureHook(fn FailureHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = fn
}

// SetFireHook registers fn for every fired job.
func (s *Scheduler) SetFireHook(fn FireHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFire = fn
}

// Initialize loads the persisted table. A missing or malformed table leaves
// every slot inactive.
func (s *Scheduler) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = [constants.MaxCronJobs]models.CronJob{}
	s.failures = [constants.MaxCronJobs]uint32{}

	data, err := s.blobs.ReadBlob(constants.BlobCronTable)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info().Msg("No cron table stored, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cron table: %w", err)
	}

	jobs, err := DecodeTable(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Discarding stored cron table")
		return nil
	}
	s.jobs = jobs

	s.logger.Info().Int("active", s.activeJobsLocked()).Str("timezone", s.location.String()).Msg("Cron table loaded")
	return nil
}

// SetJob overwrites slot index with job exactly as given and persists the
// table. Expressions the record cannot hold are rejected. On a persistence
// error the slot stays overwritten in memory.
func (s *Scheduler) SetJob(index int, job models.CronJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= constants.MaxCronJobs {
		return ErrInvalidSlot
	}
	if len(job.Expression) > constants.MaxCronExpressionLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidExpression, constants.MaxCronExpressionLen)
	}
	s.jobs[index] = job
	s.failures[index] = 0
	return s.persistLocked()
}

// UpsertJob validates job and stores it active in slot index with its fire
// history reset.
func (s *Scheduler) UpsertJob(index int, job models.CronJob) error {
	if index < 0 || index >= constants.MaxCronJobs {
		return ErrInvalidSlot
	}
	if err := validateJob(job); err != nil {
		return err
	}
	job.Active = true
	job.LastFiredEpoch = 0
	return s.SetJob(index, job)
}

// AddJob stores job in the first inactive slot and returns its index.
func (s *Scheduler) AddJob(job models.CronJob) (int, error) {
	if err := validateJob(job); err != nil {
		return -1, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].Active {
			continue
		}
		job.Active = true
		job.LastFiredEpoch = 0
		s.jobs[i] = job
		s.failures[i] = 0
		return i, s.persistLocked()
	}
	return -1, ErrNoFreeSlot
}

func validateJob(job models.CronJob) error {
	if err := Validate(job.Expression); err != nil {
		return err
	}
	switch job.Action {
	case models.ActionSetPinState, models.ActionTogglePinState, models.ActionReboot:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidAction, job.Action)
	}
}

// GetJob returns a copy of slot index. ok is false for an out-of-range index.
func (s *Scheduler) GetJob(index int) (models.CronJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= constants.MaxCronJobs {
		return models.CronJob{}, false
	}
	return s.jobs[index], true
}

// ListJobs returns a copy of the whole table.
func (s *Scheduler) ListJobs() [constants.MaxCronJobs]models.CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs
}

// ActiveJobs returns how many slots are in use.
func (s *Scheduler) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeJobsLocked()
}

func (s *Scheduler) activeJobsLocked() int {
	n := 0
	for i := range s.jobs {
		if s.jobs[i].Active {
			n++
		}
	}
	return n
}

// Failures returns the consecutive pin failures of slot index.
func (s *Scheduler) Failures(index int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= constants.MaxCronJobs {
		return 0
	}
	return s.failures[index]
}

// DeactivateJob marks slot index free. The record is kept.
func (s *Scheduler) DeactivateJob(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= constants.MaxCronJobs {
		return ErrInvalidSlot
	}
	s.jobs[index].Active = false
	s.failures[index] = 0
	return s.persistLocked()
}

// DeactivateAll marks every slot free.
func (s *Scheduler) DeactivateAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		s.jobs[i].Active = false
		s.failures[i] = 0
	}
	return s.persistLocked()
}

type firing struct {
	slot        int
	job         models.CronJob
	err         error
	consecutive uint32
}

// Tick runs every active job that is due at now. Each fired job has its
// LastFiredEpoch stamped whether or not its action succeeded, and the table
// is persisted before Tick returns. A Reboot job is stamped and persisted
// before the restart so the same trigger cannot run again after boot.
func (s *Scheduler) Tick(now time.Time) {
	local := now.In(s.location)
	epoch := uint32(now.Unix())

	s.mu.Lock()

	var fired []firing
	reboot := false
	for i := range s.jobs {
		job := &s.jobs[i]
		if !job.Active || !Due(job.Expression, local, job.LastFiredEpoch, s.window) {
			continue
		}

		var err error
		switch job.Action {
		case models.ActionSetPinState, models.ActionTogglePinState:
			err = s.applyPinAction(job)
		case models.ActionHTTPRequest:
		case models.ActionReboot:
			reboot = true
		}

		if epoch > job.LastFiredEpoch {
			job.LastFiredEpoch = epoch
		}

		f := firing{slot: i, job: *job, err: err}
		if err != nil {
			s.failures[i]++
			f.consecutive = s.failures[i]
			s.logger.Warn().Err(err).Int("slot", i).Uint8("pin", job.Pin).Uint32("consecutive", s.failures[i]).Msg("Cron job action failed")
		} else {
			s.failures[i] = 0
			s.logger.Info().Int("slot", i).Str("cron", job.Expression).Str("action", job.Action.String()).Msg("Cron job fired")
		}
		fired = append(fired, f)
	}

	if len(fired) > 0 {
		if err := s.persistLocked(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to persist cron table after firing")
		}
	}
	onFire, onFailure := s.onFire, s.onFailure
	s.mu.Unlock()

	for _, f := range fired {
		if onFire != nil {
			onFire(f.slot, f.job, f.err)
		}
		if f.err != nil && onFailure != nil {
			onFailure(f.slot, f.job, f.consecutive, f.err)
		}
	}

	if reboot {
		s.logger.Warn().Msg("Cron job requested reboot")
		s.actuator.Reboot()
	}
}

func (s *Scheduler) applyPinAction(job *models.CronJob) error {
	cfg, err := s.actuator.GetPin(job.Pin)
	if err != nil {
		return err
	}

	if job.Action == models.ActionSetPinState {
		cfg.State = int(job.Value)
	} else if cfg.State != 0 {
		cfg.State = 0
	} else {
		cfg.State = 1
	}
	return s.actuator.SetPin(cfg)
}

func (s *Scheduler) persistLocked() error {
	if err := s.blobs.WriteBlob(constants.BlobCronTable, EncodeTable(&s.jobs)); err != nil {
		return fmt.Errorf("failed to persist cron table: %w", err)
	}
	return nil
}
