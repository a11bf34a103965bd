package debuglog

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFlags struct {
	debug bool
	err   error
}

func (m *memFlags) SerialDebug() bool { return m.debug }

func (m *memFlags) SetSerialDebug(enabled bool) error {
	if m.err != nil {
		return m.err
	}
	m.debug = enabled
	return nil
}

type fakePort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}

func TestSwitch_TogglesLevelAndSerial(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	port := &fakePort{}
	var out bytes.Buffer
	flags := &memFlags{}
	open := func(name string, baud int) (io.WriteCloser, error) {
		assert.Equal(t, "/dev/ttyUSB0", name)
		assert.Equal(t, 115200, baud)
		return port, nil
	}

	logger, sw, err := New(Options{Level: "info", SerialPort: "/dev/ttyUSB0", SerialBaud: 115200}, &out, flags, open)
	require.NoError(t, err)
	assert.False(t, sw.Enabled())

	logger.Debug().Msg("hidden")
	logger.Info().Msg("visible")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "visible")
	assert.Empty(t, port.String(), "serial copy is off")

	require.NoError(t, sw.Set(true))
	assert.True(t, flags.debug)
	logger.Debug().Msg("pin trace")
	assert.Contains(t, out.String(), "pin trace")
	assert.Contains(t, port.String(), "pin trace")

	require.NoError(t, sw.Set(false))
	logger.Debug().Msg("quiet again")
	assert.NotContains(t, out.String(), "quiet again")

	require.NoError(t, sw.Close())
	assert.True(t, port.closed)
}

func TestNew_RestoresPersistedFlag(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var out bytes.Buffer
	logger, sw, err := New(Options{}, &out, &memFlags{debug: true}, nil)
	require.NoError(t, err)
	assert.True(t, sw.Enabled())

	logger.Debug().Msg("boot trace")
	assert.Contains(t, out.String(), "boot trace")
	assert.NoError(t, sw.Close())
}

func TestNew_Errors(t *testing.T) {
	_, _, err := New(Options{Level: "loud"}, io.Discard, nil, nil)
	assert.Error(t, err)

	failing := func(string, int) (io.WriteCloser, error) { return nil, errors.New("no such device") }
	_, _, err = New(Options{SerialPort: "/dev/ttyS9"}, io.Discard, nil, failing)
	assert.Error(t, err)
}

func TestSwitch_PersistFailureStillApplies(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	_, sw, err := New(Options{}, io.Discard, &memFlags{err: errors.New("flash full")}, nil)
	require.NoError(t, err)

	assert.Error(t, sw.Set(true))
	assert.True(t, sw.Enabled())
}
