package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ClockSyncer corrects the agent clock against a time server.
type ClockSyncer interface {
	Sync() (time.Duration, error)
}

// NTPService keeps the wall clock used by the scheduler synchronised. It
// syncs once on Start and then every Interval.
type NTPService struct {
	Interval time.Duration
	Clock    ClockSyncer
	Logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNTPService initializes a new NTPService.
func NewNTPService(interval time.Duration, clk ClockSyncer, logger zerolog.Logger) *NTPService {
	return &NTPService{
		Interval: interval,
		Clock:    clk,
		Logger:   logger,
	}
}

// Start performs the first sync synchronously, then launches the resync loop.
// A failed first sync is logged; the agent keeps running on the local clock.
func (n *NTPService) Start() error {
	if n.ctx != nil {
		return errors.New("ntp service is already running")
	}

	n.sync()
	n.ctx, n.cancel = context.WithCancel(context.Background())

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.run()
	}()

	n.Logger.Info().Dur("interval", n.Interval).Msg("NTPService started successfully")
	return nil
}

// Stop ends the resync loop.
func (n *NTPService) Stop() error {
	if n.ctx == nil {
		return errors.New("ntp service is not running")
	}

	n.cancel()
	n.wg.Wait()

	n.ctx = nil
	n.cancel = nil

	n.Logger.Info().Msg("NTPService stopped successfully")
	return nil
}

func (n *NTPService) run() {
	ticker := time.NewTicker(n.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.sync()
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *NTPService) sync() {
	offset, err := n.Clock.Sync()
	if err != nil {
		n.Logger.Warn().Err(err).Msg("NTP sync failed")
		return
	}
	n.Logger.Debug().Dur("offset", offset).Msg("Clock synchronised")
}
