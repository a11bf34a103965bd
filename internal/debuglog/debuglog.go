// Package debuglog builds the agent logger and owns the serial debug switch.
//
// Logs always go to the primary writer (stdout in production). When serial
// debug is on the level drops to Debug and every line is also copied to the
// configured serial port, matching the console output of the device.
package debuglog

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// FlagStore persists the serial debug flag.
type FlagStore interface {
	SerialDebug() bool
	SetSerialDebug(enabled bool) error
}

// Options configures the root logger.
type Options struct {
	Level      string
	SerialPort string
	SerialBaud int
}

// OpenPort opens a serial port. Replaced in tests.
type OpenPort func(name string, baud int) (io.WriteCloser, error)

// OpenSerialPort opens name with tarm/serial.
func OpenSerialPort(name string, baud int) (io.WriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: time.Second})
}

// Switch toggles serial debug output at runtime.
type Switch struct {
	mu        sync.Mutex
	enabled   atomic.Bool
	baseLevel zerolog.Level
	flags     FlagStore
	port      io.WriteCloser
}

// gatedWriter forwards to the serial port only while debug is enabled.
type gatedWriter struct {
	sw *Switch
}

func (g gatedWriter) Write(p []byte) (int, error) {
	if !g.sw.enabled.Load() {
		return len(p), nil
	}
	g.sw.mu.Lock()
	defer g.sw.mu.Unlock()
	if g.sw.port != nil {
		// serial errors are dropped, stdout still has the line
		_, _ = g.sw.port.Write(p)
	}
	return len(p), nil
}

// New builds the root logger writing to out and, when opts.SerialPort is set,
// to that port through open. The initial debug state comes from flags.
func New(opts Options, out io.Writer, flags FlagStore, open OpenPort) (zerolog.Logger, *Switch, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	sw := &Switch{baseLevel: level, flags: flags}
	if opts.SerialPort != "" && open != nil {
		port, err := open(opts.SerialPort, opts.SerialBaud)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open serial port %s: %w", opts.SerialPort, err)
		}
		sw.port = port
	}

	writer := zerolog.MultiLevelWriter(out, gatedWriter{sw: sw})
	logger := zerolog.New(writer).With().Timestamp().Logger()

	sw.apply(flags != nil && flags.SerialDebug())
	return logger, sw, nil
}

// Enabled reports whether serial debug is on.
func (s *Switch) Enabled() bool {
	return s.enabled.Load()
}

// Set switches serial debug and persists the flag. The switch takes effect
// even if persisting fails.
func (s *Switch) Set(enabled bool) error {
	s.apply(enabled)
	if s.flags == nil {
		return nil
	}
	if err := s.flags.SetSerialDebug(enabled); err != nil {
		return fmt.Errorf("failed to persist serial debug flag: %w", err)
	}
	return nil
}

func (s *Switch) apply(enabled bool) {
	s.enabled.Store(enabled)
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(s.baseLevel)
	}
}

// Close releases the serial port.
func (s *Switch) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
