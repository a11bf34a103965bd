package cron

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActuator struct {
	mu       sync.Mutex
	pins     map[uint8]models.PinConfig
	sets     int
	reboots  int
	onReboot func()
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{pins: map[uint8]models.PinConfig{
		4: {Pin: 4, Mode: models.PinOutput},
		5: {Pin: 5, Mode: models.PinOutput},
	}}
}

func (f *fakeActuator) GetPin(pin uint8) (models.PinConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.pins[pin]
	if !ok {
		return models.PinConfig{}, errors.New("pin not available")
	}
	return cfg, nil
}

func (f *fakeActuator) SetPin(cfg models.PinConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pins[cfg.Pin] = cfg
	f.sets++
	return nil
}

func (f *fakeActuator) Reboot() {
	f.mu.Lock()
	f.reboots++
	hook := f.onReboot
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (f *fakeActuator) state(pin uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pins[pin].State
}

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *fakeActuator, *storage.MemoryStore) {
	t.Helper()
	blobs := storage.NewMemoryStore()
	act := newFakeActuator()
	s := NewScheduler(blobs, act, zerolog.Nop(), opts...)
	require.NoError(t, s.Initialize())
	return s, act, blobs
}

var evening = time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)

func TestTick_SetPinScenario(t *testing.T) {
	s, act, blobs := newTestScheduler(t)

	require.NoError(t, s.UpsertJob(0, models.CronJob{
		Expression: "30 18 * * *",
		Action:     models.ActionSetPinState,
		Pin:        4,
		Value:      1,
	}))

	now := evening.Add(time.Second)
	s.Tick(now)
	assert.Equal(t, 1, act.state(4))

	job, ok := s.GetJob(0)
	require.True(t, ok)
	assert.Equal(t, uint32(now.Unix()), job.LastFiredEpoch)

	stored, err := blobs.ReadBlob(constants.BlobCronTable)
	require.NoError(t, err)
	persisted, err := DecodeTable(stored)
	require.NoError(t, err)
	assert.Equal(t, uint32(now.Unix()), persisted[0].LastFiredEpoch)

	act.SetPin(models.PinConfig{Pin: 4, Mode: models.PinOutput, State: 0})
	s.Tick(now.Add(time.Second))
	assert.Equal(t, 0, act.state(4), "second tick in the same window must not re-apply")
}

func TestTick_AtMostOncePerWindow(t *testing.T) {
	s, act, blobs := newTestScheduler(t)

	require.NoError(t, s.UpsertJob(3, models.CronJob{
		Expression: "30 18 * * *",
		Action:     models.ActionTogglePinState,
		Pin:        5,
	}))
	writesBefore := blobs.Writes()

	for _, offset := range []time.Duration{0, 500 * time.Millisecond, time.Second, 2 * time.Second} {
		s.Tick(evening.Add(offset))
	}

	assert.Equal(t, 1, act.sets)
	assert.Equal(t, 1, act.state(5))
	assert.Equal(t, writesBefore+1, blobs.Writes())

	job, _ := s.GetJob(3)
	assert.Equal(t, uint32(evening.Unix()), job.LastFiredEpoch)

	s.Tick(evening.Add(24 * time.Hour))
	assert.Equal(t, 0, act.state(5), "toggles back the next day")
}

func TestTick_SkipsInactiveAndOutOfWindow(t *testing.T) {
	s, act, _ := newTestScheduler(t)

	require.NoError(t, s.UpsertJob(0, models.CronJob{Expression: "30 18 * * *", Action: models.ActionSetPinState, Pin: 4, Value: 1}))
	require.NoError(t, s.DeactivateJob(0))

	s.Tick(evening)
	assert.Equal(t, 0, act.sets)

	require.NoError(t, s.UpsertJob(0, models.CronJob{Expression: "30 18 * * *", Action: models.ActionSetPinState, Pin: 4, Value: 1}))
	s.Tick(evening.Add(3 * time.Second))
	assert.Equal(t, 0, act.sets)
}

func TestTick_UsesLocation(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	s, act, _ := newTestScheduler(t, WithLocation(cet))

	require.NoError(t, s.UpsertJob(0, models.CronJob{Expression: "30 18 * * *", Action: models.ActionSetPinState, Pin: 4, Value: 1}))

	s.Tick(evening)
	assert.Equal(t, 0, act.sets)

	s.Tick(evening.Add(-time.Hour))
	assert.Equal(t, 1, act.sets)
}

func TestTick_PinFailureStillStamps(t *testing.T) {
	s, act, _ := newTestScheduler(t)

	var hookCalls []uint32
	s.SetFailureHook(func(slot int, job models.CronJob, consecutive uint32, err error) {
		assert.Equal(t, 7, slot)
		assert.Error(t, err)
		hookCalls = append(hookCalls, consecutive)
	})
	var fired []int
	s.SetFireHook(func(slot int, job models.CronJob, err error) {
		fired = append(fired, slot)
	})

	require.NoError(t, s.UpsertJob(7, models.CronJob{Expression: "30 18 * * *", Action: models.ActionSetPinState, Pin: 12, Value: 1}))

	s.Tick(evening)
	s.Tick(evening.Add(time.Second))
	job, _ := s.GetJob(7)
	assert.Equal(t, uint32(evening.Unix()), job.LastFiredEpoch)
	assert.Equal(t, uint32(1), s.Failures(7))

	s.Tick(evening.Add(24 * time.Hour))
	assert.Equal(t, uint32(2), s.Failures(7))
	assert.Equal(t, []uint32{1, 2}, hookCalls)
	assert.Equal(t, []int{7, 7}, fired)
	assert.Equal(t, 0, act.sets)
}

func TestTick_HTTPRequestIsNoop(t *testing.T) {
	s, act, _ := newTestScheduler(t)

	require.NoError(t, s.SetJob(0, models.CronJob{Active: true, Expression: "30 18 * * *", Action: models.ActionHTTPRequest}))
	s.Tick(evening)

	assert.Equal(t, 0, act.sets)
	assert.Equal(t, 0, act.reboots)
	job, _ := s.GetJob(0)
	assert.Equal(t, uint32(evening.Unix()), job.LastFiredEpoch)
}

func TestTick_RebootPersistsFirst(t *testing.T) {
	s, act, blobs := newTestScheduler(t)

	require.NoError(t, s.UpsertJob(2, models.CronJob{Expression: "30 18 * * *", Action: models.ActionReboot}))

	var stampedBeforeReboot uint32
	act.onReboot = func() {
		data, err := blobs.ReadBlob(constants.BlobCronTable)
		require.NoError(t, err)
		jobs, err := DecodeTable(data)
		require.NoError(t, err)
		stampedBeforeReboot = jobs[2].LastFiredEpoch
	}

	s.Tick(evening)
	assert.Equal(t, 1, act.reboots)
	assert.Equal(t, uint32(evening.Unix()), stampedBeforeReboot)

	restarted := NewScheduler(blobs, act, zerolog.Nop())
	require.NoError(t, restarted.Initialize())
	restarted.Tick(evening.Add(time.Second))
	assert.Equal(t, 1, act.reboots, "restart within the window must not reboot again")
}

func TestLastFiredNeverDecreases(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	require.NoError(t, s.SetJob(0, models.CronJob{
		Active:         true,
		Expression:     "* * * * *",
		Action:         models.ActionSetPinState,
		Pin:            4,
		LastFiredEpoch: uint32(evening.Unix()) - 60,
	}))

	s.Tick(evening)
	job, _ := s.GetJob(0)
	assert.Equal(t, uint32(evening.Unix()), job.LastFiredEpoch)

	s.Tick(evening.Add(-time.Hour))
	job, _ = s.GetJob(0)
	assert.Equal(t, uint32(evening.Unix()), job.LastFiredEpoch, "clock stepped back")
}

func TestUpsertJob_Validation(t *testing.T) {
	s, _, blobs := newTestScheduler(t)
	writes := blobs.Writes()

	job := models.CronJob{Expression: "30 18 * * *", Action: models.ActionSetPinState, Pin: 4}
	assert.ErrorIs(t, s.UpsertJob(-1, job), ErrInvalidSlot)
	assert.ErrorIs(t, s.UpsertJob(constants.MaxCronJobs, job), ErrInvalidSlot)
	assert.ErrorIs(t, s.UpsertJob(0, models.CronJob{Expression: "*/5 * * * *", Action: models.ActionSetPinState}), ErrInvalidExpression)
	assert.ErrorIs(t, s.UpsertJob(0, models.CronJob{Expression: "* * * * *", Action: models.ActionHTTPRequest}), ErrInvalidAction)
	assert.ErrorIs(t, s.SetJob(constants.MaxCronJobs, job), ErrInvalidSlot)

	assert.Equal(t, writes, blobs.Writes(), "rejected jobs must not touch storage")
	assert.Equal(t, 0, s.ActiveJobs())
}

func TestUpsertJob_ResetsLastFired(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	require.NoError(t, s.SetJob(1, models.CronJob{Active: true, Expression: "* * * * *", LastFiredEpoch: 1234}))
	require.NoError(t, s.UpsertJob(1, models.CronJob{Expression: "0 7 * * 1", Action: models.ActionTogglePinState, Pin: 5, LastFiredEpoch: 99}))

	job, ok := s.GetJob(1)
	require.True(t, ok)
	assert.True(t, job.Active)
	assert.Equal(t, uint32(0), job.LastFiredEpoch)
	assert.Equal(t, "0 7 * * 1", job.Expression)

	_, ok = s.GetJob(constants.MaxCronJobs)
	assert.False(t, ok)
}

func TestAddJob_TableCeiling(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	job := models.CronJob{Expression: "0 7 * * *", Action: models.ActionTogglePinState, Pin: 4}
	for i := 0; i < constants.MaxCronJobs; i++ {
		idx, err := s.AddJob(job)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}

	_, err := s.AddJob(job)
	assert.ErrorIs(t, err, ErrNoFreeSlot)
	assert.Len(t, s.ListJobs(), constants.MaxCronJobs)

	require.NoError(t, s.DeactivateJob(10))
	idx, err := s.AddJob(job)
	require.NoError(t, err)
	assert.Equal(t, 10, idx)
}

func TestDeactivate(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	for i := 0; i < 3; i++ {
		_, err := s.AddJob(models.CronJob{Expression: "0 7 * * *", Action: models.ActionReboot})
		require.NoError(t, err)
	}

	require.NoError(t, s.DeactivateJob(1))
	job, _ := s.GetJob(1)
	assert.False(t, job.Active)
	assert.Equal(t, "0 7 * * *", job.Expression, "deactivated record is kept")
	assert.ErrorIs(t, s.DeactivateJob(99), ErrInvalidSlot)

	require.NoError(t, s.DeactivateAll())
	assert.Equal(t, 0, s.ActiveJobs())
}

func TestInitialize_RestoresTable(t *testing.T) {
	s, act, blobs := newTestScheduler(t)
	require.NoError(t, s.UpsertJob(31, models.CronJob{Expression: "5,10-20 * * * *", Action: models.ActionSetPinState, Pin: 4, Value: -3}))
	s.Tick(time.Date(2025, 3, 10, 9, 15, 1, 0, time.UTC))

	restored := NewScheduler(blobs, act, zerolog.Nop())
	require.NoError(t, restored.Initialize())
	assert.Equal(t, s.ListJobs(), restored.ListJobs())
}

func TestInitialize_RejectsTornTable(t *testing.T) {
	blobs := storage.NewMemoryStore()
	jobs := [constants.MaxCronJobs]models.CronJob{}
	jobs[0] = models.CronJob{Active: true, Expression: "* * * * *"}
	data := EncodeTable(&jobs)
	require.NoError(t, blobs.WriteBlob(constants.BlobCronTable, data[:len(data)-1]))

	s := NewScheduler(blobs, newFakeActuator(), zerolog.Nop())
	require.NoError(t, s.Initialize())
	assert.Equal(t, 0, s.ActiveJobs())
}

func TestSetJob_PersistFailureKeepsMemory(t *testing.T) {
	s, _, blobs := newTestScheduler(t)
	blobs.SetWriteErr(errors.New("flash full"))

	err := s.UpsertJob(0, models.CronJob{Expression: "* * * * *", Action: models.ActionReboot})
	assert.Error(t, err)

	job, _ := s.GetJob(0)
	assert.True(t, job.Active, "applied in memory even though not durable")
}

func TestSetJob_RejectsExpressionTooLongToStore(t *testing.T) {
	s, _, blobs := newTestScheduler(t)
	require.NoError(t, s.UpsertJob(2, models.CronJob{Expression: "30 18 * * *", Action: models.ActionReboot}))
	writes := blobs.Writes()
	before := s.ListJobs()

	long := "0-59 0-23 1-31 1-12 0-6 ........"
	require.Len(t, long, constants.MaxCronExpressionLen+1)

	err := s.SetJob(2, models.CronJob{Active: true, Expression: long, Action: models.ActionReboot})
	assert.ErrorIs(t, err, ErrInvalidExpression)
	assert.Equal(t, before, s.ListJobs())
	assert.Equal(t, writes, blobs.Writes())

	stored, err := blobs.ReadBlob(constants.BlobCronTable)
	require.NoError(t, err)
	decoded, err := DecodeTable(stored)
	require.NoError(t, err)
	assert.Equal(t, "30 18 * * *", decoded[2].Expression)
}

func TestCodec_ExpressionBounds(t *testing.T) {
	var jobs [constants.MaxCronJobs]models.CronJob
	jobs[4] = models.CronJob{
		Active:         true,
		Expression:     "0-59 0-23 1-31 1-12 0-6 .......",
		Action:         models.ActionTogglePinState,
		Pin:            16,
		Value:          -1,
		LastFiredEpoch: 0xFFFFFFF0,
	}
	require.Len(t, jobs[4].Expression, constants.MaxCronExpressionLen)

	data := EncodeTable(&jobs)
	assert.Len(t, data, TableSize)

	decoded, err := DecodeTable(data)
	require.NoError(t, err)
	assert.Equal(t, jobs, decoded)
}
