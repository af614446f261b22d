package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const defaultAttemptTimeout = 15 * time.Second

// Unlocker sends a remote unlock for one lock number.
type Unlocker interface {
	RemoteUnlock(ctx context.Context, serial, userID string, lockNo int) error
}

// Recorder receives command outcomes for metrics.
type Recorder interface {
	UnlockCompleted(action string, ok bool)
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Attempt records one lock number tried for a command.
type Attempt struct {
	LockNo int    `json:"lock_no"`
	Error  string `json:"error,omitempty"`
}

// Result describes the outcome of one command.
type Result struct {
	Action   Action        `json:"action"`
	Success  bool          `json:"success"`
	LockNo   int           `json:"lock_no,omitempty"`
	Attempts []Attempt     `json:"attempts"`
	Duration time.Duration `json:"duration_ns"`
}

// Options configures a Dispatcher.
type Options struct {
	Unlocker Unlocker
	Serial   string

	// UserID is sent as the acting user. Use the session username, or the
	// account username when the session carries none.
	UserID string

	// AttemptTimeout bounds each lock attempt. Defaults to 15s.
	AttemptTimeout time.Duration

	Logger   Logger
	Recorder Recorder
}

// Dispatcher runs unlock commands for one device, one at a time.
type Dispatcher struct {
	opts Options
	mu   sync.Mutex
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Unlocker == nil {
		return nil, errors.New("command: unlocker is required")
	}
	if opts.Serial == "" {
		return nil, errors.New("command: serial is required")
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = defaultAttemptTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Dispatcher{opts: opts}, nil
}

// UnlockDoor tries lock 2, then lock 1. It reports whether either succeeded.
func (d *Dispatcher) UnlockDoor(ctx context.Context) bool {
	return d.Execute(ctx, ActionUnlockDoor).Success
}

// UnlockGate tries lock 1, then lock 2. It reports whether either succeeded.
func (d *Dispatcher) UnlockGate(ctx context.Context) bool {
	return d.Execute(ctx, ActionUnlockGate).Success
}

// Execute runs action and returns the full attempt trail.
//
// One unlock call is made per lock number in the action's order, stopping
// at the first success. An unknown action or a cancelled context yields a
// failed Result without calling the device.
func (d *Dispatcher) Execute(ctx context.Context, action Action) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	result := Result{Action: action, Attempts: []Attempt{}}

	order := action.LockOrder()
	if order == nil {
		d.opts.Logger.Warn("unknown command", "action", action)
		return result
	}

	for _, lockNo := range order {
		if ctx.Err() != nil {
			result.Attempts = append(result.Attempts, Attempt{LockNo: lockNo, Error: ctx.Err().Error()})
			break
		}

		err := d.attempt(ctx, lockNo)
		if err == nil {
			result.Success = true
			result.LockNo = lockNo
			result.Attempts = append(result.Attempts, Attempt{LockNo: lockNo})
			break
		}

		result.Attempts = append(result.Attempts, Attempt{LockNo: lockNo, Error: err.Error()})
		d.opts.Logger.Warn("unlock attempt failed",
			"serial", d.opts.Serial,
			"action", action,
			"lock_no", lockNo,
			"error", err,
		)
	}
	result.Duration = time.Since(start)

	if d.opts.Recorder != nil {
		d.opts.Recorder.UnlockCompleted(string(action), result.Success)
	}
	if result.Success {
		d.opts.Logger.Info("unlock succeeded", "serial", d.opts.Serial, "action", action, "lock_no", result.LockNo)
	} else {
		d.opts.Logger.Warn("unlock failed on every lock", "serial", d.opts.Serial, "action", action)
	}
	return result
}

// attempt performs one unlock call, converting a panic in the client into
// an error.
func (d *Dispatcher) attempt(ctx context.Context, lockNo int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command: unlock panicked: %v", r)
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, d.opts.AttemptTimeout)
	defer cancel()
	return d.opts.Unlocker.RemoteUnlock(attemptCtx, d.opts.Serial, d.opts.UserID, lockNo)
}
