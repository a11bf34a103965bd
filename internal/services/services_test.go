package services_test

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/gpio-agent/internal/mocks"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/internal/services"
	"github.com/benmeehan/gpio-agent/pkg/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingTicker struct {
	mu    sync.Mutex
	times []time.Time
}

func (r *recordingTicker) Tick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, now)
}

func (r *recordingTicker) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.times)
}

type countingRefresher struct{ n atomic.Int32 }

func (c *countingRefresher) Refresh() { c.n.Add(1) }

func TestSchedulerService_TicksWithClockTime(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 1, 0, time.UTC)
	ticker := &recordingTicker{}
	pins := &countingRefresher{}

	s := services.NewSchedulerService(20*time.Millisecond, ticker, pins, clock.Fake(at), zerolog.Nop())
	require.NoError(t, s.Start())
	assert.EqualError(t, s.Start(), "scheduler service is already running")

	assert.Eventually(t, func() bool { return ticker.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.EqualError(t, s.Stop(), "scheduler service is not running")

	ticker.mu.Lock()
	defer ticker.mu.Unlock()
	for _, ts := range ticker.times {
		assert.True(t, ts.Equal(at))
	}
	assert.GreaterOrEqual(t, int(pins.n.Load()), len(ticker.times))
}

type fakeSyncer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSyncer) Sync() (time.Duration, error) {
	f.calls.Add(1)
	return 3 * time.Millisecond, f.err
}

func TestNTPService_SyncsOnStartAndPeriodically(t *testing.T) {
	syncer := &fakeSyncer{}
	n := services.NewNTPService(20*time.Millisecond, syncer, zerolog.Nop())

	require.NoError(t, n.Start())
	assert.GreaterOrEqual(t, syncer.calls.Load(), int32(1), "first sync happens before Start returns")

	assert.Eventually(t, func() bool { return syncer.calls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, n.Stop())
	assert.EqualError(t, n.Stop(), "ntp service is not running")
}

func TestNTPService_FailedSyncDoesNotStopService(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("timeout")}
	n := services.NewNTPService(time.Hour, syncer, zerolog.Nop())

	require.NoError(t, n.Start())
	assert.Equal(t, int32(1), syncer.calls.Load())
	require.NoError(t, n.Stop())
}

func newEventService(client *mocks.MockMQTTClient) *services.EventService {
	deviceInfo := new(mocks.MockDeviceInfo)
	deviceInfo.On("GetDeviceID").Return("esp-01")
	return services.NewEventService("events", 1, 2, deviceInfo, client, zerolog.Nop())
}

func TestEventService_PublishesCronEvents(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	events := make(chan models.CronEvent, 4)
	client.On("Publish", "events", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			var ev models.CronEvent
			if err := json.Unmarshal(args.Get(3).([]byte), &ev); err == nil {
				events <- ev
			}
		}).
		Return(mocks.NewCompletedToken(nil))

	e := newEventService(client)
	require.NoError(t, e.Start())
	assert.EqualError(t, e.Start(), "event service is already running")

	job := models.CronJob{
		Active:         true,
		Expression:     "* * * * *",
		Action:         models.ActionSetPinState,
		Pin:            4,
		Value:          1,
		LastFiredEpoch: 1741608001,
	}
	e.CronFired(2, job, errors.New("pin not output"))

	// Stop drains the queue.
	require.NoError(t, e.Stop())

	select {
	case ev := <-events:
		assert.Equal(t, "esp-01", ev.DeviceID)
		assert.Equal(t, 2, ev.Slot)
		assert.Equal(t, "Set", ev.Action)
		assert.Equal(t, uint8(4), ev.Pin)
		assert.Equal(t, uint32(1741608001), ev.FiredAt)
		assert.Equal(t, "pin not output", ev.Error)
	default:
		t.Fatal("cron event was not published")
	}
}

func TestEventService_DropsEventsWhenStopped(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	e := newEventService(client)

	e.CronFired(0, models.CronJob{Action: models.ActionReboot}, nil)
	client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.EqualError(t, e.Stop(), "event service is not running")
}
