package utils

import (
	"fmt"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	HTTP struct {
		Address      string        `yaml:"address"`        // Listen address of the REST API
		MaxBodyBytes int64         `yaml:"max_body_bytes"` // Largest accepted request body
		ReadTimeout  time.Duration `yaml:"read_timeout"`   // Per-request read timeout
		WriteTimeout time.Duration `yaml:"write_timeout"`  // Per-request write timeout
		CORSOrigin   string        `yaml:"cors_origin"`    // Value of Access-Control-Allow-Origin
	} `yaml:"http"`

	Storage struct {
		Backend string `yaml:"backend"` // file, leveldb or memory
		Path    string `yaml:"path"`    // Directory holding the persisted blobs
	} `yaml:"storage"`

	Security struct {
		AESKeyFile   string        `yaml:"aes_key_file"`  // Optional key sealing the auth secret at rest
		NonceTimeout time.Duration `yaml:"nonce_timeout"` // Lifetime of an issued challenge
	} `yaml:"security"`

	Scheduler struct {
		Timezone     string        `yaml:"timezone"`      // IANA zone used to evaluate cron fields
		TickInterval time.Duration `yaml:"tick_interval"` // How often jobs are evaluated
		WindowSec    uint32        `yaml:"window_sec"`    // Seconds past the minute a job is still due
	} `yaml:"scheduler"`

	NTP struct {
		Enabled  bool          `yaml:"enabled"`  // Enable/disable clock synchronisation
		Server   string        `yaml:"server"`   // NTP server host
		Timeout  time.Duration `yaml:"timeout"`  // Query timeout
		Interval time.Duration `yaml:"interval"` // Resync interval
	} `yaml:"ntp"`

	Device struct {
		IdentityFile string              `yaml:"identity_file"` // Path to the device identity file
		Status       models.StatusConfig `yaml:"status"`        // Host collectors included in the status
	} `yaml:"device"`

	MQTT struct {
		Broker         string        `yaml:"broker"`          // MQTT broker address
		ClientID       string        `yaml:"client_id"`       // MQTT client ID prefix
		CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // Time allowed for the initial connect
	} `yaml:"mqtt"`

	Services struct {
		Heartbeat struct {
			Topic    string        `yaml:"topic"`    // MQTT topic for heartbeat service
			Enabled  bool          `yaml:"enabled"`  // Enable/disable heartbeat service
			Interval time.Duration `yaml:"interval"` // Interval between heartbeats
			QOS      int           `yaml:"qos"`      // MQTT QoS level for heartbeat messages
		} `yaml:"heartbeat"`

		Events struct {
			Topic   string `yaml:"topic"`   // MQTT topic for cron fire events
			Enabled bool   `yaml:"enabled"` // Enable/disable event publication
			QOS     int    `yaml:"qos"`     // MQTT QoS level for event messages
			Workers int    `yaml:"workers"` // Publisher goroutines
		} `yaml:"events"`
	} `yaml:"services"`

	Debug struct {
		Level      string `yaml:"level"`       // Base log level
		SerialPort string `yaml:"serial_port"` // Serial device receiving debug output
		SerialBaud int    `yaml:"serial_baud"` // Serial baud rate
	} `yaml:"debug"`
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 4096
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.CORSOrigin == "" {
		c.HTTP.CORSOrigin = "*"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data"
	}
	if c.Security.NonceTimeout <= 0 {
		c.Security.NonceTimeout = constants.NonceTimeout
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = constants.DefaultTimezone
	}
	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = time.Second
	}
	if c.Scheduler.WindowSec == 0 {
		c.Scheduler.WindowSec = constants.CronExecWindowSec
	}
	if c.NTP.Server == "" {
		c.NTP.Server = "pool.ntp.org"
	}
	if c.NTP.Timeout <= 0 {
		c.NTP.Timeout = 5 * time.Second
	}
	if c.NTP.Interval <= 0 {
		c.NTP.Interval = time.Hour
	}
	if c.Device.IdentityFile == "" {
		c.Device.IdentityFile = "device.json"
	}
	if c.MQTT.ConnectTimeout <= 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}
	if c.Services.Heartbeat.Interval <= 0 {
		c.Services.Heartbeat.Interval = 30 * time.Second
	}
	if c.Services.Events.Workers <= 0 {
		c.Services.Events.Workers = 2
	}
	if c.Debug.Level == "" {
		c.Debug.Level = "info"
	}
	if c.Debug.SerialBaud <= 0 {
		c.Debug.SerialBaud = 115200
	}
}

// Validate rejects settings that would break the agent.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}
	if c.HTTP.MaxBodyBytes+256 > constants.MaxSignedMessage {
		return fmt.Errorf("http.max_body_bytes %d leaves no room for the signed path under %d bytes", c.HTTP.MaxBodyBytes, constants.MaxSignedMessage)
	}
	if c.Security.NonceTimeout < constants.MinNonceTimeout || c.Security.NonceTimeout > constants.MaxNonceTimeout {
		return fmt.Errorf("security.nonce_timeout %s outside %s..%s", c.Security.NonceTimeout, constants.MinNonceTimeout, constants.MaxNonceTimeout)
	}
	if c.Scheduler.WindowSec >= 60 {
		return fmt.Errorf("scheduler.window_sec %d must be below 60", c.Scheduler.WindowSec)
	}
	// A tick longer than the window could step over every due second.
	if maxTick := time.Duration(c.Scheduler.WindowSec+1) * time.Second; c.Scheduler.TickInterval > maxTick {
		return fmt.Errorf("scheduler.tick_interval %s exceeds the %s execution window", c.Scheduler.TickInterval, maxTick)
	}
	if (c.Services.Heartbeat.Enabled || c.Services.Events.Enabled) && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when heartbeat or events are enabled")
	}
	return nil
}

// LoadConfig loads the YAML configuration from the specified file, applies
// defaults and validates it.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
