package pipes

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

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
	"github.com/GriffinCanCode/IPCLab/backend/internal/types"
)

const (
	// BufferSize bounds a single message including its newline delimiter.
	BufferSize = 1024

	// waitTimeout bounds how long Close waits for the child to exit after
	// the write end is closed.
	waitTimeout = 2 * time.Second
)

// recordPrefix marks responder output lines that carry an operation record.
const recordPrefix = "PIPE_JSON:"

// Channel is the parent-side handle for the pipe pair. The parent is
// strictly the sender; receiving happens in the spawned child.
type Channel struct {
	mu     sync.Mutex
	log    *logging.Logger
	w      *os.File
	cmd    *exec.Cmd
	active bool
	lastOp types.OperationRecord
}

// New creates an inactive pipe channel.
func New(log *logging.Logger) *Channel {
	return &Channel{
		log:    log.Component("pipes"),
		lastOp: types.OperationRecord{Status: ipc.StatusIdle, IPCType: "pipe"},
	}
}

// Mechanism reports the channel's transport identity.
func (c *Channel) Mechanism() types.Mechanism { return types.MechanismPipes }

// Start creates the pipe pair and spawns the receiver child. The child
// inherits the read end on fd 3; the parent keeps only the write end.
// Starting an active channel is an error.
func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return errors.Wrap(ipc.ErrInvalidState, "pipe channel already active")
	}

	r, w, err := os.Pipe()
	if err != nil {
		c.lastOp = failureRecord(ipc.StatusErrCreate, err)
		return errors.Wrap(ipc.ErrCreate, err.Error())
	}

	cmd := responderCmd(types.MechanismPipes)
	cmd.ExtraFiles = []*os.File{r}
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		c.lastOp = failureRecord(ipc.StatusErrSpawn, err)
		return errors.Wrap(ipc.ErrSpawn, err.Error())
	}
	// The child owns its copy of the read end now.
	r.Close()

	c.w = w
	c.cmd = cmd
	c.active = true
	c.lastOp = types.OperationRecord{
		Status:      ipc.StatusReady,
		SenderPid:   os.Getpid(),
		ReceiverPid: cmd.Process.Pid,
		IPCType:     "pipe",
	}

	c.log.Info("pipe channel started", zap.Int("child_pid", cmd.Process.Pid))
	return nil
}

// Send writes one newline-delimited message to the child. The delimiter
// counts against the channel buffer.
func (c *Channel) Send(message string) (types.OperationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		rec := failureRecord(ipc.StatusErrState, ipc.ErrInvalidState)
		c.lastOp = rec
		return rec, errors.Wrap(ipc.ErrInvalidState, "pipe channel not active")
	}
	if len(message)+1 > BufferSize {
		rec := failureRecord(ipc.StatusErrTooLarge, ipc.ErrMessageTooLarge)
		c.lastOp = rec
		return rec, errors.Wrapf(ipc.ErrMessageTooLarge, "%d bytes exceeds %d", len(message)+1, BufferSize)
	}

	start := time.Now()
	n, err := c.w.WriteString(message + "\n")
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
		IPCType:     "pipe",
	}
	c.lastOp = rec
	c.log.Debug("message sent", zap.Int("bytes", n), zap.Float64("time_ms", elapsed))
	return rec, nil
}

// Receive is not valid on the parent side: the spawned child is the
// channel's only reader. Out-of-loop reads are still possible by driving
// RunResponder directly over an in-process descriptor pair, which is how
// the read path is tested without spawning a child.
func (c *Channel) Receive() (types.OperationRecord, error) {
	return types.OperationRecord{Status: ipc.StatusErrState, IPCType: "pipe"},
		errors.Wrap(ipc.ErrInvalidState, "pipe parent is sender only")
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

// Close shuts the channel down: closing the write end delivers EOF to the
// child, which exits its read loop. A child that ignores EOF is killed
// after waitTimeout. Close is idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return nil
	}
	c.active = false

	if err := c.w.Close(); err != nil {
		c.log.Warn("write end close failed", zap.Error(err))
	}

	code, err := waitBounded(c.cmd, waitTimeout)
	if err != nil {
		c.log.Warn("child did not exit, killed", zap.Int("pid", c.cmd.Process.Pid))
	} else {
		c.log.Info("pipe channel closed", zap.Int("exit_code", code))
	}

	c.lastOp = types.OperationRecord{Status: ipc.StatusClosed, IPCType: "pipe"}
	c.w = nil
	c.cmd = nil
	return nil
}

// waitBounded waits for cmd to exit, escalating to SIGKILL after the
// timeout.
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

// responderCmd builds the re-exec command for a receiver child. The
// inherited channel end lands on fd 3 via ExtraFiles.
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
	return types.OperationRecord{Status: status, IPCType: "pipe", Error: err.Error()}
}

// RunResponder is the child-side read loop. It consumes newline-delimited
// messages from f until EOF, echoing each as a prefixed JSON record on w.
// The returned value is the process exit code.
func RunResponder(f *os.File, w io.Writer, log *logging.Logger) int {
	log = log.Component("pipes.responder")
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
			IPCType:     "pipe",
		}
		emitRecord(w, rec)
		log.Debug("message received", zap.Int("bytes", rec.Bytes), zap.Int("count", count))
	}

	if err := scanner.Err(); err != nil {
		emitRecord(w, types.OperationRecord{
			Status:      ipc.StatusErrRead,
			ReceiverPid: os.Getpid(),
			IPCType:     "pipe",
			Error:       err.Error(),
		})
		log.Error("read loop failed", zap.Error(err))
		return 1
	}

	emitRecord(w, types.OperationRecord{
		Status:      ipc.StatusEOF,
		ReceiverPid: os.Getpid(),
		IPCType:     "pipe",
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
