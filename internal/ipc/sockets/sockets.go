package sockets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
	"github.com/GriffinCanCode/IPCLab/backend/internal/types"
)

const (
	// BufferSize bounds a single message including its newline delimiter.
	// Sockets carry larger payloads than the pipe channel.
	BufferSize = 8192

	waitTimeout = 2 * time.Second
)

const recordPrefix = "SOCKET_JSON:"

// Channel is the parent-side handle for the socket pair.
type Channel struct {
	mu     sync.Mutex
	log    *logging.Logger
	conn   *os.File
	cmd    *exec.Cmd
	active bool
	lastOp types.OperationRecord
}

// New creates an inactive socket channel.
func New(log *logging.Logger) *Channel {
	return &Channel{
		log:    log.Component("sockets"),
		lastOp: types.OperationRecord{Status: ipc.StatusIdle, IPCType: "unix_socket"},
	}
}

// Mechanism reports the channel's transport identity.
func (c *Channel) Mechanism() types.Mechanism { return types.MechanismSockets }

// Start creates a stream socketpair and spawns the receiver child with
// one end on fd 3. Starting an active channel is an error.
func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return errors.Wrap(ipc.ErrInvalidState, "socket channel already active")
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		c.lastOp = failureRecord(ipc.StatusErrCreate, err)
		return errors.Wrap(ipc.ErrCreate, err.Error())
	}
	parentEnd := os.NewFile(uintptr(fds[0]), "socketpair-parent")
	childEnd := os.NewFile(uintptr(fds[1]), "socketpair-child")

	cmd := responderCmd(types.MechanismSockets)
	cmd.ExtraFiles = []*os.File{childEnd}
	if err := cmd.Start(); err != nil {
		parentEnd.Close()
		childEnd.Close()
		c.lastOp = failureRecord(ipc.StatusErrSpawn, err)
		return errors.Wrap(ipc.ErrSpawn, err.Error())
	}
	childEnd.Close()

	c.conn = parentEnd
	c.cmd = cmd
	c.active = true
	c.lastOp = types.OperationRecord{
		Status:      ipc.StatusReady,
		SenderPid:   os.Getpid(),
		ReceiverPid: cmd.Process.Pid,
		IPCType:     "unix_socket",
	}

	c.log.Info("socket channel started", zap.Int("child_pid", cmd.Process.Pid))
	return nil
}

// Send writes one newline-delimited message to the child. Oversized
// messages are rejected before any byte is written.
func (c *Channel) Send(message string) (types.OperationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		rec := failureRecord(ipc.StatusErrState, ipc.ErrInvalidState)
		c.lastOp = rec
		return rec, errors.Wrap(ipc.ErrInvalidState, "socket channel not active")
	}
	if len(message)+1 > BufferSize {
		rec := failureRecord(ipc.StatusErrTooLarge, ipc.ErrMessageTooLarge)
		c.lastOp = rec
		return rec, errors.Wrapf(ipc.ErrMessageTooLarge, "%d bytes exceeds %d", len(message)+1, BufferSize)
	}

	start := time.Now()
	n, err := c.conn.WriteString(message + "\n")
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		rec := failureRecord(ipc.StatusErrWrite, err)
		c.lastOp = rec
		return rec, errors.Wrap(ipc.ErrWrite, err.Error())
	}

	rec := types.OperationRecord{
		Message:     message,
		Bytes:       n,
		TimeMs:      elapsed,
		Status:      ipc.StatusSent,
		SenderPid:   os.Getpid(),
		ReceiverPid: c.cmd.Process.Pid,
		IPCType:     "unix_socket",
	}
	c.lastOp = rec
	c.log.Debug("message sent", zap.Int("bytes", n), zap.Float64("time_ms", elapsed))
	return rec, nil
}

// Receive is not valid on the parent side; the child owns the read loop.
// Out-of-loop reads go through RunResponder over an in-process socketpair.
func (c *Channel) Receive() (types.OperationRecord, error) {
	return types.OperationRecord{Status: ipc.StatusErrState, IPCType: "unix_socket"},
		errors.Wrap(ipc.ErrInvalidState, "socket parent is sender only")
}

// Pid returns the child process id, or 0 when inactive.
func (c *Channel) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Active reports whether the channel has been started and not yet closed.
func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// LastOp returns the most recent operation record.
func (c *Channel) LastOp() types.OperationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOp
}

// Close shuts the channel down. Closing the parent end half-closes the
// stream, the child sees EOF and exits; stragglers are killed after
// waitTimeout. Close is idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return nil
	}
	c.active = false

	if err := c.conn.Close(); err != nil {
		c.log.Warn("socket close failed", zap.Error(err))
	}

	code, err := waitBounded(c.cmd, waitTimeout)
	if err != nil {
		c.log.Warn("child did not exit, killed", zap.Int("pid", c.cmd.Process.Pid))
	} else {
		c.log.Info("socket channel closed", zap.Int("exit_code", code))
	}

	c.lastOp = types.OperationRecord{Status: ipc.StatusClosed, IPCType: "unix_socket"}
	c.conn = nil
	c.cmd = nil
	return nil
}

func waitBounded(cmd *exec.Cmd, timeout time.Duration) (int, error) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		if err != nil {
			return -1, err
		}
		return 0, nil
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		<-done
		return -1, errors.New("wait timed out")
	}
}

func responderCmd(m types.Mechanism) *exec.Cmd {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	cmd := exec.Command(exe, "child", "--mechanism", string(m))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

func failureRecord(status string, err error) types.OperationRecord {
	return types.OperationRecord{Status: status, IPCType: "unix_socket", Error: err.Error()}
}

// RunResponder is the child-side read loop, draining the inherited socket
// end until EOF. The returned value is the process exit code.
func RunResponder(f *os.File, w io.Writer, log *logging.Logger) int {
	log = log.Component("sockets.responder")
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, BufferSize), BufferSize)

	count := 0
	for scanner.Scan() {
		msg := scanner.Text()
		count++
		rec := types.OperationRecord{
			Message:     msg,
			Bytes:       len(msg) + 1,
			Status:      ipc.StatusReceived,
			SenderPid:   os.Getppid(),
			ReceiverPid: os.Getpid(),
			IPCType:     "unix_socket",
		}
		emitRecord(w, rec)
		log.Debug("message received", zap.Int("bytes", rec.Bytes), zap.Int("count", count))
	}

	if err := scanner.Err(); err != nil {
		emitRecord(w, types.OperationRecord{
			Status:      ipc.StatusErrRead,
			ReceiverPid: os.Getpid(),
			IPCType:     "unix_socket",
			Error:       err.Error(),
		})
		log.Error("read loop failed", zap.Error(err))
		return 1
	}

	emitRecord(w, types.OperationRecord{
		Status:      ipc.StatusEOF,
		ReceiverPid: os.Getpid(),
		IPCType:     "unix_socket",
	})
	log.Info("read loop finished", zap.Int("messages", count))
	return 0
}

func emitRecord(w io.Writer, rec types.OperationRecord) {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return
	}
	fmt.Fprintln(w, recordPrefix+strings.TrimSpace(string(data)))
}
