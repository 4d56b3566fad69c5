//go:build linux

package shmem

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
	"github.com/GriffinCanCode/IPCLab/backend/internal/types"
)

// Channel is one process's handle on the shared segment and its semaphore
// set. Lifecycle: unattached, then Create or Attach, then Destroy back to
// unattached. Only the creator removes the OS resources.
type Channel struct {
	mu      sync.Mutex
	log     *logging.Logger
	policy  RetryPolicy
	keyDir  string
	key     int
	keyPath string
	shmID   int
	seg     segment
	lock    *rwLock
	creator bool
	lastOp  types.OperationRecord
}

// Option tunes channel construction.
type Option func(*Channel)

// WithRetryPolicy overrides the semaphore wait bounds.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Channel) { c.policy = p }
}

// WithKeyDir sets the directory for derived key files.
func WithKeyDir(dir string) Option {
	return func(c *Channel) { c.keyDir = dir }
}

// New creates an unattached shared-memory channel.
func New(log *logging.Logger, opts ...Option) *Channel {
	c := &Channel{
		log:    log.Component("shmem"),
		policy: DefaultRetryPolicy(),
		lastOp: types.OperationRecord{Status: ipc.StatusIdle, IPCType: "shared_memory"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mechanism reports the channel's transport identity.
func (c *Channel) Mechanism() types.Mechanism { return types.MechanismSharedMemory }

// Create allocates a fresh segment and semaphore set under a derived key,
// attaches, and writes an initial marker so a reader before any send sees
// well-formed content.
func (c *Channel) Create() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seg.mem != nil {
		return errors.Wrap(ipc.ErrInvalidState, "already attached")
	}

	key, keyPath, err := DeriveKey(c.keyDir)
	if err != nil {
		c.lastOp = c.failure(ipc.StatusErrCreate, err)
		return errors.Wrap(ipc.ErrCreate, err.Error())
	}

	shmID, err := unix.SysvShmGet(key, SegmentSize, unix.IPC_CREAT|unix.IPC_EXCL|0o666)
	if err != nil {
		os.Remove(keyPath)
		c.lastOp = c.failure(ipc.StatusErrCreate, err)
		return errors.Wrap(ipc.ErrCreate, "shmget: "+err.Error())
	}

	mem, err := unix.SysvShmAttach(shmID, 0, 0)
	if err != nil {
		unix.SysvShmCtl(shmID, unix.IPC_RMID, nil)
		os.Remove(keyPath)
		c.lastOp = c.failure(ipc.StatusErrCreate, err)
		return errors.Wrap(ipc.ErrCreate, "shmat: "+err.Error())
	}

	sems, err := semCreate(key)
	if err != nil {
		unix.SysvShmDetach(mem)
		unix.SysvShmCtl(shmID, unix.IPC_RMID, nil)
		os.Remove(keyPath)
		c.lastOp = c.failure(ipc.StatusErrCreate, err)
		return errors.Wrap(ipc.ErrCreate, err.Error())
	}

	c.key = key
	c.keyPath = keyPath
	c.shmID = shmID
	c.seg = segment{mem: mem}
	c.lock = &rwLock{sems: sems, seg: c.seg, policy: c.policy}
	c.creator = true

	c.seg.setReaderCount(0)
	c.seg.setWriting(false)
	c.seg.setData("")
	c.seg.setWriterPid(int32(os.Getpid()))
	c.seg.setModifiedAt(time.Now())

	c.lastOp = types.OperationRecord{
		Status:    ipc.StatusReady,
		SenderPid: os.Getpid(),
		IPCType:   "shared_memory",
	}
	c.log.Info("segment created",
		zap.Int("key", key), zap.Int("shm_id", shmID), zap.Int("sem_id", sems.id))
	return nil
}

// Attach maps an existing segment created by another process. The
// semaphore set must already exist under the same key.
func (c *Channel) Attach(key int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seg.mem != nil {
		return errors.Wrap(ipc.ErrInvalidState, "already attached")
	}

	shmID, err := unix.SysvShmGet(key, SegmentSize, 0o666)
	if err != nil {
		c.lastOp = c.failure(ipc.StatusErrAttach, err)
		return errors.Wrapf(ipc.ErrNotFound, "key %d: %v", key, err)
	}

	mem, err := unix.SysvShmAttach(shmID, 0, 0)
	if err != nil {
		c.lastOp = c.failure(ipc.StatusErrAttach, err)
		return errors.Wrap(ipc.ErrCreate, "shmat: "+err.Error())
	}

	sems, err := semOpen(key)
	if err != nil {
		unix.SysvShmDetach(mem)
		c.lastOp = c.failure(ipc.StatusErrAttach, err)
		return errors.Wrapf(ipc.ErrNotFound, "semaphores for key %d: %v", key, err)
	}

	c.key = key
	c.shmID = shmID
	c.seg = segment{mem: mem}
	c.lock = &rwLock{sems: sems, seg: c.seg, policy: c.policy}
	c.creator = false

	c.lastOp = types.OperationRecord{Status: ipc.StatusReady, IPCType: "shared_memory"}
	c.log.Info("segment attached", zap.Int("key", key), zap.Int("shm_id", shmID))
	return nil
}

// Write stores one message under the write lock, truncating to the buffer
// capacity. Only the most recent writer's content survives.
func (c *Channel) Write(message string) (types.OperationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seg.mem == nil {
		rec := c.failure(ipc.StatusErrAttach, ipc.ErrNotAttached)
		c.lastOp = rec
		return rec, errors.Wrap(ipc.ErrNotAttached, "write")
	}

	start := time.Now()
	if err := c.lock.acquireWrite(); err != nil {
		rec := c.failure(ipc.StatusErrLock, err)
		c.lastOp = rec
		return rec, err
	}

	n := c.seg.setData(message)
	c.seg.setWriterPid(int32(os.Getpid()))
	c.seg.setModifiedAt(time.Now())

	if err := c.lock.unlock(); err != nil {
		rec := c.failure(ipc.StatusErrLock, err)
		c.lastOp = rec
		return rec, err
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	rec := types.OperationRecord{
		Message:   message[:n],
		Bytes:     n,
		TimeMs:    elapsed,
		Status:    ipc.StatusSent,
		SenderPid: os.Getpid(),
		IPCType:   "shared_memory",
	}
	c.lastOp = rec
	c.log.Debug("message written", zap.Int("bytes", n), zap.Float64("time_ms", elapsed))
	return rec, nil
}

// Read copies the current buffer content out under the read lock.
func (c *Channel) Read() (types.OperationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seg.mem == nil {
		rec := c.failure(ipc.StatusErrAttach, ipc.ErrNotAttached)
		c.lastOp = rec
		return rec, errors.Wrap(ipc.ErrNotAttached, "read")
	}

	start := time.Now()
	if err := c.lock.acquireRead(); err != nil {
		rec := c.failure(ipc.StatusErrLock, err)
		c.lastOp = rec
		return rec, err
	}

	msg := c.seg.data()
	senderPid := int(c.seg.writerPid())

	if err := c.lock.unlock(); err != nil {
		rec := c.failure(ipc.StatusErrLock, err)
		c.lastOp = rec
		return rec, err
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	rec := types.OperationRecord{
		Message:     msg,
		Bytes:       len(msg),
		TimeMs:      elapsed,
		Status:      ipc.StatusReceived,
		SenderPid:   senderPid,
		ReceiverPid: os.Getpid(),
		IPCType:     "shared_memory",
	}
	c.lastOp = rec
	c.log.Debug("message read", zap.Int("bytes", len(msg)))
	return rec, nil
}

// Destroy detaches and, when this process is the creator, removes the
// segment, the semaphore set, and the key file. Local handles are cleared
// on every path. Idempotent.
func (c *Channel) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seg.mem == nil {
		return nil
	}

	if err := unix.SysvShmDetach(c.seg.mem); err != nil {
		c.log.Warn("shmdt failed", zap.Error(err))
	}

	if c.creator {
		if _, err := unix.SysvShmCtl(c.shmID, unix.IPC_RMID, nil); err != nil {
			c.log.Warn("segment removal failed", zap.Error(err))
		}
		if err := c.lock.sems.remove(); err != nil {
			c.log.Warn("semaphore removal failed", zap.Error(err))
		}
		if c.keyPath != "" {
			os.Remove(c.keyPath)
		}
		c.log.Info("segment destroyed", zap.Int("key", c.key))
	} else {
		c.log.Info("segment detached", zap.Int("key", c.key))
	}

	c.seg = segment{}
	c.lock = nil
	c.creator = false
	c.key = 0
	c.keyPath = ""
	c.shmID = 0
	c.lastOp = types.OperationRecord{Status: ipc.StatusClosed, IPCType: "shared_memory"}
	return nil
}

// Key returns the segment's IPC key, or 0 when unattached. Other processes
// use it with Attach.
func (c *Channel) Key() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// Start satisfies the coordinator channel contract: create a fresh segment.
func (c *Channel) Start() error { return c.Create() }

// Send writes the message into the segment.
func (c *Channel) Send(message string) (types.OperationRecord, error) {
	return c.Write(message)
}

// Receive reads the segment's current content.
func (c *Channel) Receive() (types.OperationRecord, error) {
	return c.Read()
}

// Close destroys the channel's attachment.
func (c *Channel) Close() error { return c.Destroy() }

// Active reports whether the channel is attached.
func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seg.mem != nil
}

// Pid returns 0: shared memory spawns no child process.
func (c *Channel) Pid() int { return 0 }

// LastOp returns the most recent operation record.
func (c *Channel) LastOp() types.OperationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOp
}

func (c *Channel) failure(status string, err error) types.OperationRecord {
	return types.OperationRecord{Status: status, IPCType: "shared_memory", Error: err.Error()}
}
