// Package command dispatches unlock commands to the device.
//
// The HP7 exposes two numbered locks. Which number drives the door and
// which the gate differs between installations, so each action tries a
// preferred lock first and falls back to the other:
//
//	unlock_door: lock 2, then lock 1
//	unlock_gate: lock 1, then lock 2
//
// Dispatch never returns an error. A command that failed on every lock is
// reported as Result.Success == false with the per-lock errors attached.
package command
