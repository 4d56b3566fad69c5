package coordinator

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
	"github.com/GriffinCanCode/IPCLab/backend/internal/monitoring"
	"github.com/GriffinCanCode/IPCLab/backend/internal/proc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/types"
)

// defaultSettleDelay separates the stop and start halves of a restart so
// OS resources (pipe fds, socket pairs, segments) are fully released.
const defaultSettleDelay = 500 * time.Millisecond

// reconcileInterval paces the background sweep that drops pids of
// children that exited on their own.
const reconcileInterval = 5 * time.Second

// defaultLogCount is how many ring entries a log query returns when the
// caller does not ask for a specific number.
const defaultLogCount = 100

// Channel is the contract every mechanism manager satisfies.
type Channel interface {
	Mechanism() types.Mechanism
	Start() error
	Send(message string) (types.OperationRecord, error)
	Receive() (types.OperationRecord, error)
	Close() error
	Active() bool
	Pid() int
	LastOp() types.OperationRecord
}

// state is the coordinator's bookkeeping for one mechanism. The
// coordinator is the sole writer of the active flag.
type state struct {
	active    bool
	pid       int
	sent      uint64
	received  uint64
	startedAt time.Time
	lastError string
	ring      *logRing
}

// Coordinator owns all channels and serializes every lifecycle and
// messaging operation under one lock.
type Coordinator struct {
	mu       sync.Mutex
	log      *logging.Logger
	metrics  *monitoring.Metrics
	channels map[types.Mechanism]Channel
	order    []types.Mechanism
	states   map[types.Mechanism]*state

	settle    time.Duration
	startedAt time.Time
	running   bool

	sigCh   chan os.Signal
	sigDone chan struct{}
}

// Option tunes coordinator construction.
type Option func(*Coordinator)

// WithSettleDelay overrides the restart settle delay.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.settle = d }
}

// WithMetrics attaches a metrics set; without one, instrumentation is a no-op.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New builds a coordinator over the given channels. Channel order is
// preserved: shutdown walks it front to back.
func New(log *logging.Logger, channels []Channel, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:      log.Component("coordinator"),
		channels: make(map[types.Mechanism]Channel, len(channels)),
		states:   make(map[types.Mechanism]*state, len(channels)),
		settle:   defaultSettleDelay,
		sigDone:  make(chan struct{}),
	}
	for _, ch := range channels {
		m := ch.Mechanism()
		c.channels[m] = ch
		c.states[m] = &state{ring: newLogRing()}
		c.order = append(c.order, m)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize installs termination-signal handlers and marks the
// coordinator running. Idempotent.
func (c *Coordinator) Initialize() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.running = true
	c.startedAt = time.Now()

	c.sigDone = make(chan struct{})
	c.sigCh = make(chan os.Signal, 1)
	signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go c.watchSignals()
	go c.reconcileLoop()

	c.log.Info("coordinator initialized", zap.Int("mechanisms", len(c.order)))
}

func (c *Coordinator) reconcileLoop() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.WaitForAllChildren()
		case <-c.sigDone:
			return
		}
	}
}

func (c *Coordinator) watchSignals() {
	select {
	case sig := <-c.sigCh:
		c.log.Info("termination signal received", zap.String("signal", sig.String()))
		c.Shutdown()
	case <-c.sigDone:
	}
}

// Start activates a mechanism. Starting an already-active mechanism is a
// no-op success; the active flag flips only after the channel starts.
func (c *Coordinator) Start(m types.Mechanism) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, st, err := c.lookup(m)
	if err != nil {
		return err
	}
	if st.active {
		c.log.Debug("mechanism already active", zap.String("mechanism", string(m)))
		return nil
	}

	if err := ch.Start(); err != nil {
		st.lastError = err.Error()
		st.ring.append(logLine(m, "start failed: "+err.Error()))
		c.countError(m)
		c.log.Error("start failed", zap.String("mechanism", string(m)), zap.Error(err))
		return err
	}

	st.active = true
	st.pid = ch.Pid()
	st.startedAt = time.Now()
	st.lastError = ""
	st.ring.append(logLine(m, fmt.Sprintf("started (pid %d)", st.pid)))
	if c.metrics != nil {
		c.metrics.ActiveMechanisms.Inc()
	}
	c.log.Info("mechanism started", zap.String("mechanism", string(m)), zap.Int("pid", st.pid))
	return nil
}

// Stop deactivates a mechanism. The active flag clears before the channel
// closes so concurrent status readers see it down immediately; any tracked
// child still alive after close gets graceful-then-forced termination.
// Idempotent: stopping an inactive mechanism succeeds.
func (c *Coordinator) Stop(m types.Mechanism) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(m)
}

func (c *Coordinator) stopLocked(m types.Mechanism) error {
	ch, st, err := c.lookup(m)
	if err != nil {
		return err
	}
	if !st.active && st.pid == 0 {
		return nil
	}

	wasActive := st.active
	st.active = false

	if err := ch.Close(); err != nil {
		st.lastError = err.Error()
		c.log.Warn("channel close failed", zap.String("mechanism", string(m)), zap.Error(err))
	}

	if st.pid > 0 {
		if !proc.Terminate(st.pid, c.log) {
			c.log.Warn("child survived termination", zap.Int("pid", st.pid))
		}
		st.pid = 0
	}

	st.ring.append(logLine(m, "stopped"))
	if wasActive && c.metrics != nil {
		c.metrics.ActiveMechanisms.Dec()
	}
	c.log.Info("mechanism stopped", zap.String("mechanism", string(m)))
	return nil
}

// Restart stops the mechanism, waits out the settle delay, and starts it
// again.
func (c *Coordinator) Restart(m types.Mechanism) error {
	if err := c.Stop(m); err != nil {
		return err
	}
	time.Sleep(c.settle)
	return c.Start(m)
}

// Send routes a message to an active mechanism, updating the counter and
// log ring on success.
func (c *Coordinator) Send(m types.Mechanism, message string) (types.OperationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, st, err := c.lookup(m)
	if err != nil {
		return types.OperationRecord{}, err
	}
	if !st.active {
		st.ring.append(logLine(m, "send refused: not active"))
		return types.OperationRecord{Status: ipc.StatusErrState},
			errors.Wrapf(ipc.ErrInvalidState, "%s is not active", m)
	}

	rec, err := ch.Send(message)
	if err != nil {
		st.lastError = err.Error()
		st.ring.append(logLine(m, "send failed: "+err.Error()))
		c.countError(m)
		c.log.Error("send failed", zap.String("mechanism", string(m)), zap.Error(err))
		return rec, err
	}

	st.sent++
	st.ring.append(logLine(m, fmt.Sprintf("sent %d bytes in %.3f ms", rec.Bytes, rec.TimeMs)))
	if c.metrics != nil {
		c.metrics.MessagesSent.WithLabelValues(string(m)).Inc()
		c.metrics.SendDuration.WithLabelValues(string(m)).Observe(rec.TimeMs)
	}
	return rec, nil
}

// Receive reads from an active mechanism. Only shared memory supports
// coordinator-side receive; pipe and socket children consume their own
// input.
func (c *Coordinator) Receive(m types.Mechanism) (types.OperationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, st, err := c.lookup(m)
	if err != nil {
		return types.OperationRecord{}, err
	}
	if !st.active {
		st.ring.append(logLine(m, "receive refused: not active"))
		return types.OperationRecord{Status: ipc.StatusErrState},
			errors.Wrapf(ipc.ErrInvalidState, "%s is not active", m)
	}

	rec, err := ch.Receive()
	if err != nil {
		st.lastError = err.Error()
		st.ring.append(logLine(m, "receive failed: "+err.Error()))
		c.countError(m)
		return rec, err
	}

	st.received++
	st.ring.append(logLine(m, fmt.Sprintf("received %d bytes", rec.Bytes)))
	if c.metrics != nil {
		c.metrics.MessagesReceived.WithLabelValues(string(m)).Inc()
	}
	return rec, nil
}

// Status aggregates the full coordinator view. Read-only.
func (c *Coordinator) Status() types.CoordinatorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := types.CoordinatorStatus{
		Mechanisms: make([]types.MechanismStatus, 0, len(c.order)),
		AllActive:  len(c.order) > 0,
	}
	for _, m := range c.order {
		ms := c.mechanismStatusLocked(m)
		out.Mechanisms = append(out.Mechanisms, ms)
		if !ms.IsActive {
			out.AllActive = false
		}
		if ms.ProcessPid > 0 && ms.IsRunning {
			out.TotalProcesses++
		}
	}

	if c.running {
		out.Status = "running"
		out.StartupTime = c.startedAt.Format(time.RFC3339)
		out.TotalUptimeMs = time.Since(c.startedAt).Milliseconds()
	} else {
		out.Status = "stopped"
	}
	return out
}

// MechanismStatus reports one mechanism's view. Read-only.
func (c *Coordinator) MechanismStatus(m types.Mechanism) (types.MechanismStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.channels[m]; !ok {
		return types.MechanismStatus{}, errors.Wrapf(ipc.ErrInvalidState, "unknown mechanism %q", m)
	}
	return c.mechanismStatusLocked(m), nil
}

func (c *Coordinator) mechanismStatusLocked(m types.Mechanism) types.MechanismStatus {
	ch := c.channels[m]
	st := c.states[m]

	ms := types.MechanismStatus{
		Type:             m,
		Name:             displayName(m),
		IsActive:         st.active,
		ProcessPid:       st.pid,
		LastError:        st.lastError,
		LastOperation:    ch.LastOp().Status,
		MessagesSent:     st.sent,
		MessagesReceived: st.received,
	}
	if st.active {
		ms.UptimeMs = time.Since(st.startedAt).Milliseconds()
		if st.pid > 0 {
			ms.IsRunning = proc.Alive(st.pid)
		} else {
			ms.IsRunning = true
		}
	}
	return ms
}

// Detail pairs a mechanism's status with its channel's latest operation
// record.
func (c *Coordinator) Detail(m types.Mechanism) (types.MechanismDetail, error) {
	status, err := c.MechanismStatus(m)
	if err != nil {
		return types.MechanismDetail{}, err
	}
	c.mu.Lock()
	lastOp := c.channels[m].LastOp()
	c.mu.Unlock()
	return types.MechanismDetail{Mechanism: m, Status: status, LastOperation: lastOp}, nil
}

// Logs returns up to count of a mechanism's most recent ring entries,
// oldest first. A non-positive count asks for the default of 100.
func (c *Coordinator) Logs(m types.Mechanism, count int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[m]
	if !ok {
		return nil, errors.Wrapf(ipc.ErrInvalidState, "unknown mechanism %q", m)
	}
	if count <= 0 {
		count = defaultLogCount
	}

	entries := st.ring.snapshot()
	if len(entries) > count {
		entries = entries[len(entries)-count:]
	}
	return entries, nil
}

// Execute maps a parsed command onto coordinator operations, rendering a
// textual result. Failures come back as error payloads, never as panics.
func (c *Coordinator) Execute(cmd types.Command) types.CommandResult {
	switch cmd.Action {
	case "start":
		if err := c.Start(cmd.Mechanism); err != nil {
			return types.CommandResult{Status: "error", Message: err.Error()}
		}
		return types.CommandResult{Status: "ok", Message: fmt.Sprintf("%s started", cmd.Mechanism)}

	case "stop":
		if err := c.Stop(cmd.Mechanism); err != nil {
			return types.CommandResult{Status: "error", Message: err.Error()}
		}
		return types.CommandResult{Status: "ok", Message: fmt.Sprintf("%s stopped", cmd.Mechanism)}

	case "send":
		rec, err := c.Send(cmd.Mechanism, cmd.Message)
		if err != nil {
			return types.CommandResult{Status: "error", Message: err.Error()}
		}
		return types.CommandResult{
			Status:  "ok",
			Message: fmt.Sprintf("sent %d bytes via %s in %.3f ms", rec.Bytes, cmd.Mechanism, rec.TimeMs),
		}

	case "status":
		s := c.Status()
		parts := make([]string, 0, len(s.Mechanisms))
		for _, ms := range s.Mechanisms {
			stateWord := "inactive"
			if ms.IsActive {
				stateWord = "active"
			}
			parts = append(parts, fmt.Sprintf("%s: %s", ms.Type, stateWord))
		}
		return types.CommandResult{Status: "ok", Message: strings.Join(parts, ", ")}

	case "logs":
		entries, err := c.Logs(cmd.Mechanism, 0)
		if err != nil {
			return types.CommandResult{Status: "error", Message: err.Error()}
		}
		return types.CommandResult{Status: "ok", Message: strings.Join(entries, "\n")}

	default:
		return types.CommandResult{Status: "error", Message: fmt.Sprintf("unknown action %q", cmd.Action)}
	}
}

// Shutdown stops every mechanism in fixed order, detaches the signal
// handler, force-terminates stragglers, and clears all state. Idempotent.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.log.Info("shutting down")

	for _, m := range c.order {
		if err := c.Stop(m); err != nil {
			c.log.Warn("stop during shutdown failed", zap.String("mechanism", string(m)), zap.Error(err))
		}
	}

	if c.sigCh != nil {
		signal.Stop(c.sigCh)
	}
	close(c.sigDone)

	c.KillAllChildren()

	c.mu.Lock()
	for _, st := range c.states {
		st.ring.clear()
		st.sent = 0
		st.received = 0
		st.lastError = ""
	}
	c.mu.Unlock()

	c.log.Info("shutdown complete")
}

// KillAllChildren force-terminates every tracked child. Best effort.
func (c *Coordinator) KillAllChildren() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for m, st := range c.states {
		if st.pid > 0 {
			c.log.Warn("force terminating child",
				zap.String("mechanism", string(m)), zap.Int("pid", st.pid))
			proc.Terminate(st.pid, c.log)
			st.pid = 0
		}
	}
}

// WaitForAllChildren reconciles tracked pids with reality, dropping
// entries for children that already exited. Non-blocking; returns the
// number of entries dropped.
func (c *Coordinator) WaitForAllChildren() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	reaped := 0
	for m, st := range c.states {
		if st.pid > 0 && !proc.Alive(st.pid) {
			c.log.Info("child already exited",
				zap.String("mechanism", string(m)), zap.Int("pid", st.pid))
			st.pid = 0
			reaped++
		}
	}
	return reaped
}

// Running reports whether Initialize has run and Shutdown has not.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) lookup(m types.Mechanism) (Channel, *state, error) {
	ch, ok := c.channels[m]
	if !ok {
		return nil, nil, errors.Wrapf(ipc.ErrInvalidState, "unknown mechanism %q", m)
	}
	return ch, c.states[m], nil
}

func (c *Coordinator) countError(m types.Mechanism) {
	if c.metrics != nil {
		c.metrics.OperationErrors.WithLabelValues(string(m)).Inc()
	}
}

func logLine(m types.Mechanism, text string) string {
	return fmt.Sprintf("%s [%s] %s", time.Now().Format("15:04:05.000"), m, text)
}

func displayName(m types.Mechanism) string {
	switch m {
	case types.MechanismPipes:
		return "Anonymous Pipes"
	case types.MechanismSockets:
		return "Unix Domain Sockets"
	case types.MechanismSharedMemory:
		return "Shared Memory"
	}
	return string(m)
}
