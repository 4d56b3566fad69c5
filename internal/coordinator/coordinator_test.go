package coordinator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
	"github.com/GriffinCanCode/IPCLab/backend/internal/types"
)

type fakeChannel struct {
	mech       types.Mechanism
	startCalls int
	closeCalls int
	startErr   error
	sendErr    error
	active     bool
	lastOp     types.OperationRecord
}

func (f *fakeChannel) Mechanism() types.Mechanism { return f.mech }

func (f *fakeChannel) Start() error {
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	f.lastOp = types.OperationRecord{Status: ipc.StatusReady}
	return nil
}

func (f *fakeChannel) Send(message string) (types.OperationRecord, error) {
	if f.sendErr != nil {
		return types.OperationRecord{Status: ipc.StatusErrWrite}, f.sendErr
	}
	f.lastOp = types.OperationRecord{
		Message: message,
		Bytes:   len(message) + 1,
		Status:  ipc.StatusSent,
	}
	return f.lastOp, nil
}

func (f *fakeChannel) Receive() (types.OperationRecord, error) {
	f.lastOp = types.OperationRecord{Message: "echo", Bytes: 5, Status: ipc.StatusReceived}
	return f.lastOp, nil
}

func (f *fakeChannel) Close() error {
	f.closeCalls++
	f.active = false
	return nil
}

func (f *fakeChannel) Active() bool { return f.active }

func (f *fakeChannel) Pid() int { return 0 }

func (f *fakeChannel) LastOp() types.OperationRecord { return f.lastOp }

func newTestCoordinator() (*Coordinator, map[types.Mechanism]*fakeChannel) {
	fakes := map[types.Mechanism]*fakeChannel{
		types.MechanismPipes:        {mech: types.MechanismPipes},
		types.MechanismSockets:      {mech: types.MechanismSockets},
		types.MechanismSharedMemory: {mech: types.MechanismSharedMemory},
	}
	channels := []Channel{
		fakes[types.MechanismPipes],
		fakes[types.MechanismSockets],
		fakes[types.MechanismSharedMemory],
	}
	c := New(logging.NewNop(), channels, WithSettleDelay(time.Millisecond))
	return c, fakes
}

func TestStartIsIdempotent(t *testing.T) {
	c, fakes := newTestCoordinator()

	require.NoError(t, c.Start(types.MechanismPipes))
	require.NoError(t, c.Start(types.MechanismPipes))
	assert.Equal(t, 1, fakes[types.MechanismPipes].startCalls)
}

func TestStartFailureLeavesInactive(t *testing.T) {
	c, fakes := newTestCoordinator()
	fakes[types.MechanismPipes].startErr = ipc.ErrCreate

	err := c.Start(types.MechanismPipes)
	require.Error(t, err)

	status, err := c.MechanismStatus(types.MechanismPipes)
	require.NoError(t, err)
	assert.False(t, status.IsActive)
	assert.NotEmpty(t, status.LastError)
}

func TestStopClearsState(t *testing.T) {
	c, fakes := newTestCoordinator()

	require.NoError(t, c.Start(types.MechanismSockets))
	require.NoError(t, c.Stop(types.MechanismSockets))

	status, err := c.MechanismStatus(types.MechanismSockets)
	require.NoError(t, err)
	assert.False(t, status.IsActive)
	assert.Equal(t, 1, fakes[types.MechanismSockets].closeCalls)

	// Stopping again is a no-op success.
	require.NoError(t, c.Stop(types.MechanismSockets))
	assert.Equal(t, 1, fakes[types.MechanismSockets].closeCalls)
}

func TestSendRequiresActive(t *testing.T) {
	c, _ := newTestCoordinator()

	_, err := c.Send(types.MechanismPipes, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ipc.ErrInvalidState)
}

func TestSendUpdatesCounters(t *testing.T) {
	c, _ := newTestCoordinator()
	require.NoError(t, c.Start(types.MechanismPipes))

	for i := 0; i < 3; i++ {
		_, err := c.Send(types.MechanismPipes, "hello")
		require.NoError(t, err)
	}

	status, err := c.MechanismStatus(types.MechanismPipes)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), status.MessagesSent)

	logs, err := c.Logs(types.MechanismPipes, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 4) // one start entry plus three sends
}

func TestLogsCount(t *testing.T) {
	c, _ := newTestCoordinator()
	require.NoError(t, c.Start(types.MechanismPipes))

	const sends = 120
	for i := 0; i < sends; i++ {
		_, err := c.Send(types.MechanismPipes, "hello")
		require.NoError(t, err)
	}

	// Explicit count returns the most recent N, oldest first.
	logs, err := c.Logs(types.MechanismPipes, 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)

	all, err := c.Logs(types.MechanismPipes, sends+1)
	require.NoError(t, err)
	require.Len(t, all, sends+1) // start entry plus every send
	assert.Equal(t, all[len(all)-3:], logs)

	// Default caps at 100.
	logs, err = c.Logs(types.MechanismPipes, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 100)

	// A count beyond what exists returns everything.
	logs, err = c.Logs(types.MechanismPipes, 100000)
	require.NoError(t, err)
	assert.Len(t, logs, sends+1)
}

func TestReceiveUpdatesCounters(t *testing.T) {
	c, _ := newTestCoordinator()
	require.NoError(t, c.Start(types.MechanismSharedMemory))

	_, err := c.Receive(types.MechanismSharedMemory)
	require.NoError(t, err)

	status, err := c.MechanismStatus(types.MechanismSharedMemory)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.MessagesReceived)
}

func TestUnknownMechanism(t *testing.T) {
	c, _ := newTestCoordinator()

	assert.Error(t, c.Start("carrier_pigeon"))
	assert.Error(t, c.Stop("carrier_pigeon"))
	_, err := c.Logs("carrier_pigeon", 0)
	assert.Error(t, err)
}

func TestStatusAggregation(t *testing.T) {
	c, _ := newTestCoordinator()
	c.Initialize()
	defer c.Shutdown()

	s := c.Status()
	assert.False(t, s.AllActive)
	assert.Equal(t, "running", s.Status)
	assert.Len(t, s.Mechanisms, 3)

	for _, m := range types.Mechanisms() {
		require.NoError(t, c.Start(m))
	}
	s = c.Status()
	assert.True(t, s.AllActive)
	for _, ms := range s.Mechanisms {
		assert.True(t, ms.IsActive)
		assert.True(t, ms.IsRunning)
	}
}

func TestExecute(t *testing.T) {
	c, _ := newTestCoordinator()

	res := c.Execute(types.Command{Action: "start", Mechanism: types.MechanismPipes})
	assert.Equal(t, "ok", res.Status)

	res = c.Execute(types.Command{Action: "send", Mechanism: types.MechanismPipes, Message: "hi"})
	assert.Equal(t, "ok", res.Status)
	assert.Contains(t, res.Message, "pipes")

	res = c.Execute(types.Command{Action: "status"})
	assert.Equal(t, "ok", res.Status)
	assert.Contains(t, res.Message, "pipes: active")
	assert.Contains(t, res.Message, "sockets: inactive")

	res = c.Execute(types.Command{Action: "send", Mechanism: types.MechanismSockets, Message: "hi"})
	assert.Equal(t, "error", res.Status)

	res = c.Execute(types.Command{Action: "reboot"})
	assert.Equal(t, "error", res.Status)
	assert.Contains(t, res.Message, "unknown action")
}

func TestShutdownStopsEverything(t *testing.T) {
	c, fakes := newTestCoordinator()
	c.Initialize()

	for _, m := range types.Mechanisms() {
		require.NoError(t, c.Start(m))
	}

	c.Shutdown()
	assert.False(t, c.Running())
	for _, f := range fakes {
		assert.False(t, f.active)
		assert.Equal(t, 1, f.closeCalls)
	}

	// Rings are cleared on full cleanup.
	logs, err := c.Logs(types.MechanismPipes, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	// Shutdown is idempotent.
	c.Shutdown()
	for _, f := range fakes {
		assert.Equal(t, 1, f.closeCalls)
	}
}

func TestRestart(t *testing.T) {
	c, fakes := newTestCoordinator()
	require.NoError(t, c.Start(types.MechanismPipes))
	require.NoError(t, c.Restart(types.MechanismPipes))

	f := fakes[types.MechanismPipes]
	assert.Equal(t, 2, f.startCalls)
	assert.Equal(t, 1, f.closeCalls)
	assert.True(t, f.active)
}

func TestRingEviction(t *testing.T) {
	r := newLogRing()
	for i := 0; i < ringCapacity+1; i++ {
		r.append(fmt.Sprintf("entry %d", i))
	}

	assert.Equal(t, ringCapacity, r.len())
	snap := r.snapshot()
	require.Len(t, snap, ringCapacity)
	assert.Equal(t, "entry 1", snap[0]) // oldest evicted
	assert.Equal(t, fmt.Sprintf("entry %d", ringCapacity), snap[len(snap)-1])
}
