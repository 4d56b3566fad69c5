package types

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
)

// Command is the generic control record consumed by the coordinator.
type Command struct {
	Action    string    `json:"action"`
	Mechanism Mechanism `json:"mechanism"`
	Message   string    `json:"message"`
}

// Validation is deliberately asymmetric: start/stop/send require an explicit
// mechanism, while status/logs fall back to pipes when none is given.
var commandRules = map[string]struct {
	needsMechanism bool
	needsMessage   bool
}{
	"start":  {needsMechanism: true},
	"stop":   {needsMechanism: true},
	"send":   {needsMechanism: true, needsMessage: true},
	"status": {},
	"logs":   {},
}

// ParseCommand decodes and validates a raw command record. A rejected
// command never reaches the coordinator.
func ParseCommand(data []byte) (Command, error) {
	var raw struct {
		Action    string `json:"action"`
		Mechanism string `json:"mechanism"`
		Message   string `json:"message"`
	}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ipc.ErrParse, err)
	}

	rule, ok := commandRules[raw.Action]
	if !ok {
		if raw.Action == "" {
			return Command{}, fmt.Errorf("%w: action is required", ipc.ErrParse)
		}
		return Command{}, fmt.Errorf("%w: unknown action %q", ipc.ErrParse, raw.Action)
	}

	cmd := Command{Action: raw.Action, Message: raw.Message}

	switch {
	case raw.Mechanism != "":
		mech, ok := ParseMechanism(raw.Mechanism)
		if !ok {
			return Command{}, fmt.Errorf("%w: unknown mechanism %q", ipc.ErrParse, raw.Mechanism)
		}
		cmd.Mechanism = mech
	case rule.needsMechanism:
		return Command{}, fmt.Errorf("%w: action %q requires a mechanism", ipc.ErrParse, raw.Action)
	default:
		cmd.Mechanism = MechanismPipes
	}

	if rule.needsMessage && raw.Message == "" {
		return Command{}, fmt.Errorf("%w: action %q requires a message", ipc.ErrParse, raw.Action)
	}

	return cmd, nil
}
