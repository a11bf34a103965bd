package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/gpio-agent/pkg/clock"
	"github.com/rs/zerolog"
)

// Ticker evaluates due jobs at a wall-clock instant.
type Ticker interface {
	Tick(now time.Time)
}

// Refresher updates cached input readings.
type Refresher interface {
	Refresh()
}

// SchedulerService is the periodic driver of the device: every interval it
// refreshes pin inputs and runs the cron scheduler.
type SchedulerService struct {
	Interval  time.Duration
	Scheduler Ticker
	Pins      Refresher
	Clock     clock.Clock
	Logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSchedulerService initializes a new SchedulerService.
func NewSchedulerService(interval time.Duration, scheduler Ticker, pins Refresher, clk clock.Clock, logger zerolog.Logger) *SchedulerService {
	return &SchedulerService{
		Interval:  interval,
		Scheduler: scheduler,
		Pins:      pins,
		Clock:     clk,
		Logger:    logger,
	}
}

// Start launches the driver loop.
func (s *SchedulerService) Start() error {
	if s.ctx != nil {
		return errors.New("scheduler service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()

	s.Logger.Info().Dur("interval", s.Interval).Msg("SchedulerService started successfully")
	return nil
}

// Stop waits for the current tick to finish.
func (s *SchedulerService) Stop() error {
	if s.ctx == nil {
		return errors.New("scheduler service is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.Logger.Info().Msg("SchedulerService stopped successfully")
	return nil
}

func (s *SchedulerService) run() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Pins.Refresh()
			s.Scheduler.Tick(s.Clock.Now())
		case <-s.ctx.Done():
			return
		}
	}
}
