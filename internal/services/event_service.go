package services

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/internal/utils"
	"github.com/benmeehan/gpio-agent/pkg/identity"
	"github.com/benmeehan/gpio-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// eventQueueSize bounds the events waiting for the broker. One full table
// firing at once fits.
const eventQueueSize = 32

// EventService publishes a CronEvent for every job the scheduler fires.
// Publishing happens on a worker pool so the scheduler tick never waits on
// the broker.
type EventService struct {
	PubTopic   string
	QOS        int
	Workers    int
	DeviceInfo identity.DeviceInfoInterface
	MqttClient mqtt.MQTTClient
	Logger     zerolog.Logger

	mu      sync.Mutex
	running bool
	pool    *utils.WorkerPool
}

// NewEventService initializes a new EventService.
func NewEventService(pubTopic string, qos, workers int, deviceInfo identity.DeviceInfoInterface,
	mqttClient mqtt.MQTTClient, logger zerolog.Logger) *EventService {

	if workers <= 0 {
		workers = 1
	}
	return &EventService{
		PubTopic:   pubTopic,
		QOS:        qos,
		Workers:    workers,
		DeviceInfo: deviceInfo,
		MqttClient: mqttClient,
		Logger:     logger,
	}
}

// Start spins up the publisher pool.
func (e *EventService) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.New("event service is already running")
	}
	e.pool = utils.NewWorkerPool(e.Workers, eventQueueSize)
	e.running = true

	e.Logger.Info().Str("topic", e.PubTopic).Int("workers", e.Workers).Msg("EventService started successfully")
	return nil
}

// Stop drains queued events and shuts the pool down.
func (e *EventService) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return errors.New("event service is not running")
	}
	e.running = false
	pool := e.pool
	e.pool = nil
	e.mu.Unlock()

	pool.Shutdown()
	e.Logger.Info().Msg("EventService stopped successfully")
	return nil
}

// CronFired queues an event for a fired job. Events raised while the service
// is stopped or while the queue is full are dropped.
func (e *EventService) CronFired(slot int, job models.CronJob, err error) {
	event := models.CronEvent{
		DeviceID:   e.DeviceInfo.GetDeviceID(),
		Slot:       slot,
		Expression: job.Expression,
		Action:     job.Action.String(),
		Pin:        job.Pin,
		Value:      job.Value,
		FiredAt:    job.LastFiredEpoch,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		e.Logger.Debug().Int("slot", slot).Msg("EventService stopped, dropping cron event")
		return
	}
	if !e.pool.TrySubmit(func() { e.publish(event) }) {
		e.Logger.Warn().Int("slot", slot).Msg("Event queue full, dropping cron event")
	}
}

func (e *EventService) publish(event models.CronEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.Logger.Error().Err(err).Msg("Failed to serialize cron event")
		return
	}

	token := e.MqttClient.Publish(e.PubTopic, byte(e.QOS), false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		e.Logger.Error().Err(err).Int("slot", event.Slot).Msg("Failed to publish cron event")
		return
	}
	e.Logger.Debug().Int("slot", event.Slot).Msg("Cron event published")
}
