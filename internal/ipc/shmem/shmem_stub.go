//go:build !linux

package shmem

import (
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
	"github.com/GriffinCanCode/IPCLab/backend/internal/types"
)

var errUnsupported = errors.Wrap(ipc.ErrCreate, "system v shared memory requires linux")

// Channel is a placeholder on non-Linux platforms; every operation fails.
type Channel struct {
	log *logging.Logger
}

// Option tunes channel construction.
type Option func(*Channel)

// WithRetryPolicy is accepted but has no effect on this platform.
func WithRetryPolicy(RetryPolicy) Option { return func(*Channel) {} }

// WithKeyDir is accepted but has no effect on this platform.
func WithKeyDir(string) Option { return func(*Channel) {} }

// New creates the placeholder channel.
func New(log *logging.Logger, opts ...Option) *Channel {
	c := &Channel{log: log.Component("shmem")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Mechanism() types.Mechanism { return types.MechanismSharedMemory }

func (c *Channel) Create() error        { return errUnsupported }
func (c *Channel) Attach(key int) error { return errUnsupported }
func (c *Channel) Destroy() error       { return nil }
func (c *Channel) Key() int             { return 0 }

func (c *Channel) Write(string) (types.OperationRecord, error) {
	return c.failure(), errUnsupported
}

func (c *Channel) Read() (types.OperationRecord, error) {
	return c.failure(), errUnsupported
}

func (c *Channel) Start() error { return errUnsupported }

func (c *Channel) Send(message string) (types.OperationRecord, error) {
	return c.Write(message)
}

func (c *Channel) Receive() (types.OperationRecord, error) { return c.Read() }

func (c *Channel) Close() error { return nil }
func (c *Channel) Active() bool { return false }
func (c *Channel) Pid() int     { return 0 }

func (c *Channel) LastOp() types.OperationRecord {
	return types.OperationRecord{Status: ipc.StatusIdle, IPCType: "shared_memory"}
}

func (c *Channel) failure() types.OperationRecord {
	return types.OperationRecord{
		Status:  ipc.StatusErrCreate,
		IPCType: "shared_memory",
		Error:   errUnsupported.Error(),
	}
}
