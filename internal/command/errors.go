package command

import "errors"

// ErrUnknownAction is returned by ParseAction for unsupported names.
var ErrUnknownAction = errors.New("command: unknown action")
