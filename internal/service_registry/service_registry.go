package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/gpio-agent/internal/api"
	"github.com/benmeehan/gpio-agent/internal/auth"
	"github.com/benmeehan/gpio-agent/internal/cron"
	"github.com/benmeehan/gpio-agent/internal/device"
	"github.com/benmeehan/gpio-agent/internal/services"
	"github.com/benmeehan/gpio-agent/internal/utils"
	"github.com/benmeehan/gpio-agent/pkg/clock"
	"github.com/benmeehan/gpio-agent/pkg/identity"
	"github.com/benmeehan/gpio-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// Service is anything the registry can start and stop.
type Service interface {
	Start() error
	Stop() error
}

// Dependencies are the long-lived components services are built from.
type Dependencies struct {
	Auth       *auth.Engine
	Debug      api.DebugSwitch
	Pins       *device.Controller
	Scheduler  *cron.Scheduler
	Status     api.StatusSource
	Clock      clock.Clock
	NTP        services.ClockSyncer
	DeviceInfo identity.DeviceInfoInterface
	MqttClient mqtt.MQTTClient
}

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes an empty service registry.
func NewServiceRegistry(logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]Service),
		Logger:   logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Names returns the registered services in start order.
func (sr *ServiceRegistry) Names() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deps Dependencies) error {
	mqttEnabled := deps.MqttClient != nil

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "events",
			enabled: config.Services.Events.Enabled && mqttEnabled,
			constructor: func() (Service, error) {
				events := services.NewEventService(
					config.Services.Events.Topic,
					config.Services.Events.QOS,
					config.Services.Events.Workers,
					deps.DeviceInfo,
					deps.MqttClient,
					sr.Logger,
				)
				deps.Scheduler.SetFireHook(events.CronFired)
				return events, nil
			},
		},
		{
			name:    "ntp",
			enabled: config.NTP.Enabled && deps.NTP != nil,
			constructor: func() (Service, error) {
				return services.NewNTPService(config.NTP.Interval, deps.NTP, sr.Logger), nil
			},
		},
		{
			name:    "scheduler",
			enabled: true,
			constructor: func() (Service, error) {
				return services.NewSchedulerService(
					config.Scheduler.TickInterval,
					deps.Scheduler,
					deps.Pins,
					deps.Clock,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "api",
			enabled: true,
			constructor: func() (Service, error) {
				return api.NewServer(
					api.Options{
						Address:      config.HTTP.Address,
						MaxBodyBytes: config.HTTP.MaxBodyBytes,
						ReadTimeout:  config.HTTP.ReadTimeout,
						WriteTimeout: config.HTTP.WriteTimeout,
						CORSOrigin:   config.HTTP.CORSOrigin,
					},
					deps.Auth,
					deps.Debug,
					deps.Pins,
					deps.Scheduler,
					deps.Status,
					deps.Clock,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "heartbeat",
			enabled: config.Services.Heartbeat.Enabled && mqttEnabled,
			constructor: func() (Service, error) {
				return services.NewHeartbeatService(
					config.Services.Heartbeat.Topic,
					config.Services.Heartbeat.Interval,
					config.Services.Heartbeat.QOS,
					deps.DeviceInfo,
					deps.MqttClient,
					deps.Auth,
					deps.Scheduler,
					sr.Logger,
				), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
