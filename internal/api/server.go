package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/benmeehan/gpio-agent/pkg/clock"
	"github.com/rs/zerolog"
)

// Authenticator is the challenge/response engine guarding the API.
type Authenticator interface {
	IsEnabled() bool
	IssueChallenge(client string) (uint32, error)
	Verify(client string, nonce uint32, uri string, payload []byte, signatureHex string) error
	Reject(client string) error
	GenerateKey() (string, error)
	Enable() error
	Disable() error
}

// DebugSwitch toggles verbose serial logging.
type DebugSwitch interface {
	Enabled() bool
	Set(enabled bool) error
}

// Pins is the GPIO controller.
type Pins interface {
	Get(pin uint8) (models.PinConfig, error)
	GetAll() [constants.MaxGPIOPins]models.PinConfig
	Set(cfg models.PinConfig) (models.PinConfig, error)
	ReplaceAll(configs []models.PinConfig) error
	Read(pin uint8) (int, error)
	Reboot()
}

// Jobs is the cron job table.
type Jobs interface {
	UpsertJob(index int, job models.CronJob) error
	AddJob(job models.CronJob) (int, error)
	GetJob(index int) (models.CronJob, bool)
	ListJobs() [constants.MaxCronJobs]models.CronJob
	DeactivateJob(index int) error
	DeactivateAll() error
}

// StatusSource reports the device section of the state.
type StatusSource interface {
	Report(ctx context.Context) models.DeviceStatus
}

// Options configures the HTTP server.
type Options struct {
	Address      string
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigin   string

	// RebootDelay lets the reboot response reach the client before the
	// agent restarts.
	RebootDelay time.Duration
}

// Server is the REST API of the agent.
type Server struct {
	opts   Options
	auth   Authenticator
	debug  DebugSwitch
	pins   Pins
	jobs   Jobs
	status StatusSource
	clock  clock.Clock
	logger zerolog.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer wires the handlers. Call Start to listen.
func NewServer(opts Options, auth Authenticator, debug DebugSwitch, pins Pins, jobs Jobs,
	status StatusSource, clk clock.Clock, logger zerolog.Logger) *Server {

	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4096
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.RebootDelay <= 0 {
		opts.RebootDelay = 100 * time.Millisecond
	}
	return &Server{
		opts:   opts,
		auth:   auth,
		debug:  debug,
		pins:   pins,
		jobs:   jobs,
		status: status,
		clock:  clk,
		logger: logger,
	}
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/auth/challenge", s.handleChallenge)
	mux.HandleFunc("POST /api/setup", s.protected(s.handleSetup))
	mux.HandleFunc("GET /api/state", s.protected(s.handleState))
	mux.HandleFunc("GET /api/pin", s.protected(s.handleGetPin))
	mux.HandleFunc("POST /api/config", s.protected(s.handleConfig))
	mux.HandleFunc("PATCH /api/pin/set", s.protected(s.handlePatchPin))
	mux.HandleFunc("POST /api/reboot", s.protected(s.handleReboot))
	mux.HandleFunc("PATCH /api/cron/set", s.protected(s.handleCronSet))
	mux.HandleFunc("GET /api/cron", s.protected(s.handleGetCron))
	mux.HandleFunc("DELETE /api/cron", s.protected(s.handleDeleteCron))
	mux.HandleFunc("DELETE /api/cron/clear", s.protected(s.handleClearCron))

	return s.cors(mux)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return errors.New("api server is already running")
	}

	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server stopped unexpectedly")
		}
	}(s.srv, s.done)

	s.logger.Info().Str("address", ln.Addr().String()).Msg("REST API started")
	return nil
}

// Addr returns the bound address while the server runs.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return errors.New("api server is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	<-s.done

	s.srv = nil
	s.listener = nil
	s.logger.Info().Msg("REST API stopped")
	return err
}
