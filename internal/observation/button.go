package observation

import (
	"context"

	"github.com/nerrad567/gray-logic-ezviz/internal/command"
)

// Executor runs unlock commands.
type Executor interface {
	Execute(ctx context.Context, action command.Action) command.Result
}

// Button triggers one unlock action.
type Button struct {
	action command.Action
	name   string
	icon   string
	exec   Executor
}

// Action returns the command the button sends.
func (b *Button) Action() command.Action { return b.action }

// Name returns the display name.
func (b *Button) Name() string { return b.name }

// Icon returns the display icon.
func (b *Button) Icon() string { return b.icon }

// Press sends the unlock command and returns its outcome.
func (b *Button) Press(ctx context.Context) command.Result {
	return b.exec.Execute(ctx, b.action)
}

// newButtons creates one button per supported action.
func newButtons(caps command.Capabilities, exec Executor) []*Button {
	if exec == nil {
		return nil
	}
	var buttons []*Button
	if caps.Gate {
		buttons = append(buttons, &Button{action: command.ActionUnlockGate, name: "Unlock Gate", icon: "mdi:gate-open", exec: exec})
	}
	if caps.Door {
		buttons = append(buttons, &Button{action: command.ActionUnlockDoor, name: "Unlock Door", icon: "mdi:door-open", exec: exec})
	}
	return buttons
}
