package device

import (
	"os"
	"syscall"

	"github.com/rs/zerolog"
)

// Rebooter restarts the agent.
type Rebooter interface {
	Reboot()
}

// ExecRebooter replaces the running process with a fresh copy of itself.
// If that fails the process exits non-zero and the supervisor restarts it.
type ExecRebooter struct {
	Logger zerolog.Logger
	// BeforeExec runs first, typically to flush storage.
	BeforeExec func()
}

// Reboot does not return.
func (r *ExecRebooter) Reboot() {
	r.Logger.Warn().Msg("Rebooting agent")
	if r.BeforeExec != nil {
		r.BeforeExec()
	}

	exe, err := os.Executable()
	if err == nil {
		err = syscall.Exec(exe, os.Args, os.Environ())
	}
	r.Logger.Error().Err(err).Msg("Re-exec failed, exiting")
	os.Exit(1)
}
