package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
)

// Clock is the time source for nonce lifetimes and cron evaluation.
// Production code uses an NTPClock; tests use a FakeClock.
type Clock interface {
	// Now returns the synchronized wall-clock time.
	Now() time.Time

	// MonotonicMillis is a wrapping millisecond counter that never jumps
	// when the wall clock is corrected.
	MonotonicMillis() uint32
}

type queryFunc func(host string, opt ntp.QueryOptions) (*ntp.Response, error)

// NTPClock corrects the local wall clock by the offset measured against an
// NTP server. Until the first successful Sync the local clock is used as is.
type NTPClock struct {
	server  string
	timeout time.Duration
	start   time.Time
	offset  atomic.Int64
	synced  atomic.Bool
	query   queryFunc
}

// NewNTPClock returns an unsynchronized clock bound to server.
func NewNTPClock(server string, timeout time.Duration) *NTPClock {
	return &NTPClock{
		server:  server,
		timeout: timeout,
		start:   time.Now(),
		query:   ntp.QueryWithOptions,
	}
}

// Now returns local time adjusted by the last measured NTP offset.
func (c *NTPClock) Now() time.Time {
	return time.Now().Add(time.Duration(c.offset.Load()))
}

// MonotonicMillis returns milliseconds since the clock was created.
func (c *NTPClock) MonotonicMillis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Synced reports whether at least one Sync succeeded.
func (c *NTPClock) Synced() bool {
	return c.synced.Load()
}

// Offset returns the correction currently applied to the local clock.
func (c *NTPClock) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}

// Sync queries the NTP server and stores the measured clock offset.
func (c *NTPClock) Sync() (time.Duration, error) {
	resp, err := c.query(c.server, ntp.QueryOptions{Timeout: c.timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	c.offset.Store(int64(resp.ClockOffset))
	c.synced.Store(true)
	return resp.ClockOffset, nil
}

// SystemClock is the local clock, used when NTP is disabled.
type SystemClock struct {
	start time.Time
}

// System returns a SystemClock whose monotonic counter starts now.
func System() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the local time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// MonotonicMillis returns milliseconds since the clock was created.
func (c *SystemClock) MonotonicMillis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// FakeClock is a Clock whose time only moves when told to.
type FakeClock struct {
	mu   sync.Mutex
	wall time.Time
	mono time.Duration
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{wall: initial}
}

// Now returns the fake wall-clock time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

// MonotonicMillis returns the fake monotonic counter.
func (c *FakeClock) MonotonicMillis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(c.mono.Milliseconds())
}

// Advance moves both the wall clock and the monotonic counter forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall = c.wall.Add(d)
	c.mono += d
}

// Set jumps the wall clock to t, leaving the monotonic counter untouched.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall = t
}
