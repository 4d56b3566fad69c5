package types

// Mechanism identifies one of the supported IPC transports.
type Mechanism string

const (
	MechanismPipes        Mechanism = "pipes"
	MechanismSockets      Mechanism = "sockets"
	MechanismSharedMemory Mechanism = "shared_memory"
)

// Mechanisms returns all mechanisms in their canonical order. The order is
// fixed: coordinator shutdown walks it front to back.
func Mechanisms() []Mechanism {
	return []Mechanism{MechanismPipes, MechanismSockets, MechanismSharedMemory}
}

// ParseMechanism resolves a mechanism name, accepting the "shmem" shorthand
// used by the interactive console.
func ParseMechanism(s string) (Mechanism, bool) {
	switch s {
	case "pipes":
		return MechanismPipes, true
	case "sockets":
		return MechanismSockets, true
	case "shmem", "shared_memory":
		return MechanismSharedMemory, true
	}
	return "", false
}

// OperationRecord describes the most recent send/receive on a channel.
// It is overwritten on every operation; only the latest one is kept.
type OperationRecord struct {
	Message     string  `json:"message"`
	Bytes       int     `json:"bytes"`
	TimeMs      float64 `json:"time_ms"`
	Status      string  `json:"status"`
	SenderPid   int     `json:"sender_pid"`
	ReceiverPid int     `json:"receiver_pid"`
	IPCType     string  `json:"ipc_type"`
	Error       string  `json:"error,omitempty"`
}

// MechanismStatus is the per-mechanism slice of the coordinator status payload.
type MechanismStatus struct {
	Type             Mechanism `json:"type"`
	Name             string    `json:"name"`
	IsActive         bool      `json:"is_active"`
	IsRunning        bool      `json:"is_running"`
	ProcessPid       int       `json:"process_pid"`
	LastError        string    `json:"last_error"`
	LastOperation    string    `json:"last_operation"`
	UptimeMs         int64     `json:"uptime_ms"`
	MessagesSent     uint64    `json:"messages_sent"`
	MessagesReceived uint64    `json:"messages_received"`
}

// CoordinatorStatus aggregates the state of all mechanisms.
type CoordinatorStatus struct {
	Mechanisms     []MechanismStatus `json:"mechanisms"`
	AllActive      bool              `json:"all_active"`
	TotalProcesses int               `json:"total_processes"`
	StartupTime    string            `json:"startup_time"`
	TotalUptimeMs  int64             `json:"total_uptime_ms"`
	Status         string            `json:"status"`
}

// CommandResult is the textual outcome of an executed command.
type CommandResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MechanismDetail pairs a mechanism's status with its channel's most
// recent operation record.
type MechanismDetail struct {
	Mechanism     Mechanism       `json:"mechanism"`
	Status        MechanismStatus `json:"status"`
	LastOperation OperationRecord `json:"last_operation"`
}
