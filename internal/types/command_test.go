package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr bool
	}{
		{
			name:  "valid send",
			input: `{"action":"send","mechanism":"pipes","message":"ping"}`,
			want:  Command{Action: "send", Mechanism: MechanismPipes, Message: "ping"},
		},
		{
			name:  "valid start",
			input: `{"action":"start","mechanism":"shared_memory"}`,
			want:  Command{Action: "start", Mechanism: MechanismSharedMemory},
		},
		{
			name:  "status tolerates missing mechanism",
			input: `{"action":"status"}`,
			want:  Command{Action: "status", Mechanism: MechanismPipes},
		},
		{
			name:  "logs tolerates missing mechanism",
			input: `{"action":"logs"}`,
			want:  Command{Action: "logs", Mechanism: MechanismPipes},
		},
		{
			name:  "shmem shorthand",
			input: `{"action":"stop","mechanism":"shmem"}`,
			want:  Command{Action: "stop", Mechanism: MechanismSharedMemory},
		},
		{name: "missing action", input: `{"mechanism":"pipes"}`, wantErr: true},
		{name: "unknown action", input: `{"action":"reboot"}`, wantErr: true},
		{name: "start without mechanism", input: `{"action":"start"}`, wantErr: true},
		{name: "stop without mechanism", input: `{"action":"stop"}`, wantErr: true},
		{name: "send without message", input: `{"action":"send","mechanism":"pipes"}`, wantErr: true},
		{name: "send without mechanism", input: `{"action":"send","message":"hi"}`, wantErr: true},
		{name: "unknown mechanism", input: `{"action":"start","mechanism":"carrier_pigeon"}`, wantErr: true},
		{name: "not json", input: `start pipes`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ipc.ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMechanism(t *testing.T) {
	for _, m := range Mechanisms() {
		got, ok := ParseMechanism(string(m))
		require.True(t, ok)
		assert.Equal(t, m, got)
	}
	if _, ok := ParseMechanism("smoke_signals"); ok {
		t.Error("expected unknown mechanism to be rejected")
	}
}
