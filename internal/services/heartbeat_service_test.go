package services_test

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/gpio-agent/internal/mocks"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type staticAuth bool

func (s staticAuth) IsEnabled() bool { return bool(s) }

type staticJobs int

func (s staticJobs) ActiveJobs() int { return int(s) }

func newHeartbeat(interval time.Duration, client *mocks.MockMQTTClient) (*services.HeartbeatService, *mocks.MockDeviceInfo) {
	deviceInfo := new(mocks.MockDeviceInfo)
	deviceInfo.On("GetDeviceID").Return("test-device-id")

	h := services.NewHeartbeatService(
		"test-topic",
		interval,
		1,
		deviceInfo,
		client,
		staticAuth(true),
		staticJobs(3),
		zerolog.Nop(),
	)
	return h, deviceInfo
}

// TestHeartbeatService_Start_Success tests the successful start of the HeartbeatService.
func TestHeartbeatService_Start_Success(t *testing.T) {
	h, _ := newHeartbeat(time.Second, new(mocks.MockMQTTClient))

	err := h.Start()
	assert.NoError(t, err)

	// Try to start again (should fail)
	err = h.Start()
	assert.Error(t, err)
	assert.Equal(t, "heartbeat service is already running", err.Error())

	assert.NoError(t, h.Stop())
}

// TestHeartbeatService_Stop_Success tests the successful stop of the HeartbeatService.
func TestHeartbeatService_Stop_Success(t *testing.T) {
	h, _ := newHeartbeat(time.Second, new(mocks.MockMQTTClient))

	assert.NoError(t, h.Start())
	assert.NoError(t, h.Stop())

	// Try to stop again (should fail)
	err := h.Stop()
	assert.Error(t, err)
	assert.Equal(t, "heartbeat service is not running", err.Error())
}

// TestHeartbeatService_runHeartbeatLoop_Success checks the published payload.
func TestHeartbeatService_runHeartbeatLoop_Success(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	published := make(chan models.Heartbeat, 8)

	client.On("Publish", "test-topic", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			var hb models.Heartbeat
			if err := json.Unmarshal(args.Get(3).([]byte), &hb); err == nil {
				published <- hb
			}
		}).
		Return(mocks.NewCompletedToken(nil))

	h, deviceInfo := newHeartbeat(50*time.Millisecond, client)
	assert.NoError(t, h.Start())

	select {
	case hb := <-published:
		assert.Equal(t, "test-device-id", hb.DeviceID)
		assert.Equal(t, "alive", hb.Status)
		assert.True(t, hb.Auth)
		assert.Equal(t, 3, hb.ActiveJobs)
		assert.NotEmpty(t, hb.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat published")
	}

	assert.NoError(t, h.Stop())
	deviceInfo.AssertExpectations(t)
	client.AssertExpectations(t)
}

// TestHeartbeatService_runHeartbeatLoop_PublishError keeps looping when the broker rejects a publish.
func TestHeartbeatService_runHeartbeatLoop_PublishError(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	var attempts atomic.Int32
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { attempts.Add(1) }).
		Return(mocks.NewCompletedToken(errors.New("publish failed")))

	h, _ := newHeartbeat(50*time.Millisecond, client)
	assert.NoError(t, h.Start())

	assert.Eventually(t, func() bool {
		return attempts.Load() >= 2
	}, 2*time.Second, 20*time.Millisecond)

	assert.NoError(t, h.Stop())
}
