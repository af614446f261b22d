package command

import (
	"fmt"
	"strings"
)

// Action is an unlock command the device accepts.
type Action string

const (
	ActionUnlockDoor Action = "unlock_door"
	ActionUnlockGate Action = "unlock_gate"
)

// Default lock numbers for each action.
const (
	DefaultDoorLockNo = 2
	DefaultGateLockNo = 1
)

// Actions lists every supported action.
var Actions = []Action{ActionUnlockDoor, ActionUnlockGate}

// ParseAction accepts an action name ("unlock_door") or its short form
// ("door"), case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ActionUnlockDoor), "door":
		return ActionUnlockDoor, nil
	case string(ActionUnlockGate), "gate":
		return ActionUnlockGate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// LockOrder returns the lock numbers to try, in order.
func (a Action) LockOrder() []int {
	switch a {
	case ActionUnlockDoor:
		return []int{DefaultDoorLockNo, DefaultGateLockNo}
	case ActionUnlockGate:
		return []int{DefaultGateLockNo, DefaultDoorLockNo}
	}
	return nil
}

// Valid reports whether a is a supported action.
func (a Action) Valid() bool {
	return a.LockOrder() != nil
}

// Capabilities lists the actions a device supports.
type Capabilities struct {
	Door bool `json:"door"`
	Gate bool `json:"gate"`
}

// Supports reports whether action is available.
func (c Capabilities) Supports(action Action) bool {
	switch action {
	case ActionUnlockDoor:
		return c.Door
	case ActionUnlockGate:
		return c.Gate
	}
	return false
}
