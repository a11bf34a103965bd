package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benmeehan/gpio-agent/internal/auth"
	"github.com/benmeehan/gpio-agent/internal/cron"
	"github.com/benmeehan/gpio-agent/internal/debuglog"
	"github.com/benmeehan/gpio-agent/internal/device"
	"github.com/benmeehan/gpio-agent/internal/metrics_collectors"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/internal/service_registry"
	"github.com/benmeehan/gpio-agent/internal/settings"
	"github.com/benmeehan/gpio-agent/internal/utils"
	"github.com/benmeehan/gpio-agent/pkg/clock"
	"github.com/benmeehan/gpio-agent/pkg/encryption"
	"github.com/benmeehan/gpio-agent/pkg/file"
	"github.com/benmeehan/gpio-agent/pkg/identity"
	"github.com/benmeehan/gpio-agent/pkg/mqtt"
	"github.com/benmeehan/gpio-agent/pkg/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "path to the agent configuration")
	pflag.Parse()

	// Bootstrap logger until the persisted debug flag is known
	bootLog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		bootLog.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}

	blobs, err := storage.Open(config.Storage.Backend, config.Storage.Path, fileClient)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer blobs.Close()

	flags := settings.NewStore(blobs)
	if err := flags.Load(); err != nil {
		bootLog.Warn().Err(err).Msg("Settings unreadable, using defaults")
	}

	log, debugSwitch, err := debuglog.New(debuglog.Options{
		Level:      config.Debug.Level,
		SerialPort: config.Debug.SerialPort,
		SerialBaud: config.Debug.SerialBaud,
	}, os.Stdout, flags, debuglog.OpenSerialPort)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer debugSwitch.Close()

	// Initialize DeviceInfo
	deviceInfo := identity.NewDeviceInfo(config.Device.IdentityFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load device information")
	}
	log.Info().Str("device_id", deviceInfo.GetDeviceID()).Msg("Device identity loaded")

	var clk clock.Clock = clock.System()
	var ntpClock *clock.NTPClock
	if config.NTP.Enabled {
		ntpClock = clock.NewNTPClock(config.NTP.Server, config.NTP.Timeout)
		clk = ntpClock
	}

	var authOpts []auth.Option
	authOpts = append(authOpts, auth.WithNonceTimeout(config.Security.NonceTimeout))
	if config.Security.AESKeyFile != "" {
		sealer := encryption.NewEncryptionManager(fileClient)
		if err := sealer.Initialize(config.Security.AESKeyFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to load AES key")
		}
		authOpts = append(authOpts, auth.WithSealer(sealer))
	}
	authEngine := auth.NewEngine(flags, blobs, clk, log, authOpts...)
	if err := authEngine.Initialize(); err != nil {
		log.Error().Err(err).Msg("Failed to initialize authentication")
	}

	pins := device.NewController(device.NewSimulatedBoard(), blobs, &device.ExecRebooter{
		Logger: log,
		BeforeExec: func() {
			_ = debugSwitch.Close()
			_ = blobs.Close()
		},
	}, log)
	if err := pins.Initialize(); err != nil {
		log.Error().Err(err).Msg("Failed to restore GPIO configuration")
	}

	location, err := time.LoadLocation(config.Scheduler.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scheduler timezone")
	}
	scheduler := cron.NewScheduler(blobs, pins, log,
		cron.WithLocation(location),
		cron.WithWindow(config.Scheduler.WindowSec),
	)
	scheduler.SetFailureHook(func(slot int, job models.CronJob, consecutive uint32, err error) {
		if consecutive > 1 {
			log.Warn().Err(err).Int("slot", slot).Uint32("consecutive", consecutive).Msg("Cron job keeps failing")
		}
	})
	if err := scheduler.Initialize(); err != nil {
		log.Error().Err(err).Msg("Failed to restore cron jobs")
	}

	collectors := metrics_collectors.NewDefaultRegistry(&config.Device.Status, log)
	status := device.NewStatusReporter(deviceInfo.GetDeviceID(), collectors)

	deps := service_registry.Dependencies{
		Auth:       authEngine,
		Debug:      debugSwitch,
		Pins:       pins,
		Scheduler:  scheduler,
		Status:     status,
		Clock:      clk,
		DeviceInfo: deviceInfo,
	}
	if ntpClock != nil {
		deps.NTP = ntpClock
	}

	// Initialize the shared MQTT connection when a broker is configured
	var mqttClient *mqtt.MqttService
	if config.MQTT.Broker != "" {
		// Generate a unique MQTT Client ID by appending a UUID
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		log.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		mqttClient = mqtt.NewMqttService(fileClient)
		if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate, config.MQTT.ConnectTimeout); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		deps.MqttClient = mqttClient
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(log)
	if err := serviceRegistry.RegisterServices(config, deps); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Some services did not stop cleanly")
	}
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
}
