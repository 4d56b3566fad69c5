// Package proc supervises spawned channel processes: liveness probes and
// graceful-then-forced termination.
package proc

import (
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
)

const (
	// gracePeriod is how long a child gets to honor SIGTERM before SIGKILL.
	gracePeriod = 100 * time.Millisecond

	pollInterval = 10 * time.Millisecond
)

// Alive reports whether pid refers to a live process. A zero or negative
// pid is never alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

// Terminate stops pid with escalation: SIGTERM, a bounded wait for exit,
// then SIGKILL for stragglers. Returns true when the process is gone by
// the time Terminate returns. Terminating a dead pid succeeds trivially.
func Terminate(pid int, log *logging.Logger) bool {
	if !Alive(pid) {
		return true
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		log.Debug("sigterm failed", zap.Int("pid", pid), zap.Error(err))
	}

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			log.Debug("process exited gracefully", zap.Int("pid", pid))
			return true
		}
		time.Sleep(pollInterval)
	}

	log.Warn("escalating to sigkill", zap.Int("pid", pid))
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		log.Debug("sigkill failed", zap.Int("pid", pid), zap.Error(err))
	}

	// SIGKILL is not deliverable-refusable; give the kernel a beat.
	for i := 0; i < 10; i++ {
		if !Alive(pid) {
			return true
		}
		time.Sleep(pollInterval)
	}
	return !Alive(pid)
}
