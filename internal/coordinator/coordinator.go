package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

const (
	// DefaultInterval is the polling period used when none is configured.
	DefaultInterval = 2 * time.Second

	defaultTimeout = 10 * time.Second
)

// Fetcher returns the raw status of a device.
type Fetcher interface {
	Status(ctx context.Context, serial string) (map[string]any, error)
}

// Update is delivered to subscribers after every refresh.
//
// On success Err is nil and Snapshot is the new reading. On failure Err
// holds the fetch error and Snapshot is the previous reading, which is
// the zero Snapshot if no refresh has succeeded yet.
type Update struct {
	Snapshot status.Snapshot
	Err      error
	At       time.Time
}

// Subscriber is notified after each completed refresh.
type Subscriber interface {
	OnRefresh(u Update)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(u Update)

// OnRefresh calls f(u).
func (f SubscriberFunc) OnRefresh(u Update) { f(u) }

// Recorder receives poll outcomes for metrics.
type Recorder interface {
	ObservePoll(ok bool, duration time.Duration)
}

// Logger is the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Coordinator.
type Options struct {
	Fetcher Fetcher
	Serial  string

	// Interval between refreshes. Defaults to 2s.
	Interval time.Duration

	// Timeout bounds one status fetch. Defaults to 10s.
	Timeout time.Duration

	Logger   Logger
	Recorder Recorder

	// Now overrides the clock used for FetchedAt and stats.
	Now func() time.Time
}

// Stats summarises polling so far.
type Stats struct {
	Polls       uint64    `json:"polls"`
	Failures    uint64    `json:"failures"`
	Ready       bool      `json:"ready"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

type subscription struct {
	id  uint64
	sub Subscriber
}

// Coordinator polls one device and fans out updates.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Coordinator struct {
	opts Options

	snapshot  atomic.Pointer[status.Snapshot]
	refreshMu sync.Mutex

	subsMu sync.RWMutex
	subs   []subscription
	nextID uint64

	statsMu sync.RWMutex
	stats   Stats

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a coordinator. It does not poll until FirstRefresh or Start.
func New(opts Options) (*Coordinator, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("coordinator: fetcher is required")
	}
	if opts.Serial == "" {
		return nil, errors.New("coordinator: serial is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Coordinator{
		opts:   opts,
		stopCh: make(chan struct{}),
	}, nil
}

// Serial returns the polled device serial.
func (c *Coordinator) Serial() string {
	return c.opts.Serial
}

// Interval returns the polling period.
func (c *Coordinator) Interval() time.Duration {
	return c.opts.Interval
}

// Snapshot returns the latest successful reading and whether one exists.
func (c *Coordinator) Snapshot() (status.Snapshot, bool) {
	p := c.snapshot.Load()
	if p == nil {
		return status.Snapshot{}, false
	}
	return *p, true
}

// Subscribe registers s for updates and returns a function that removes it.
// Subscribers are notified in registration order, synchronously on the
// refreshing goroutine, and must not block.
func (c *Coordinator) Subscribe(s Subscriber) func() {
	c.subsMu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription{id: id, sub: s})
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		for i, entry := range c.subs {
			if entry.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// FirstRefresh performs the startup refresh.
//
// Returns:
//   - error: ErrNotReady wrapping the cause if the device could not be read
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

// Refresh fetches and publishes a new snapshot now.
//
// On failure the previous snapshot is kept and subscribers are notified
// with the error.
//
// Returns:
//   - error: ErrFetchFailed wrapping the cause
func (c *Coordinator) Refresh(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return nil
}

func (c *Coordinator) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	started := c.opts.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	raw, err := c.opts.Fetcher.Status(fetchCtx, c.opts.Serial)
	cancel()
	elapsed := c.opts.Now().Sub(started)

	if c.opts.Recorder != nil {
		c.opts.Recorder.ObservePoll(err == nil, elapsed)
	}

	if err != nil {
		c.recordFailure(started, err)
		previous, _ := c.Snapshot()
		c.notify(Update{Snapshot: previous, Err: err, At: started})
		return err
	}

	snap := status.Normalize(raw, started)
	c.snapshot.Store(&snap)
	c.recordSuccess(started)
	c.notify(Update{Snapshot: snap, At: started})
	return nil
}

func (c *Coordinator) notify(u Update) {
	c.subsMu.RLock()
	subs := make([]Subscriber, len(c.subs))
	for i, entry := range c.subs {
		subs[i] = entry.sub
	}
	c.subsMu.RUnlock()

	for _, s := range subs {
		c.deliver(s, u)
	}
}

// deliver calls one subscriber, recovering from panics so one faulty
// subscriber cannot stop the others or the polling loop.
func (c *Coordinator) deliver(s Subscriber, u Update) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Error("subscriber panicked", "serial", c.opts.Serial, "panic", r)
		}
	}()
	s.OnRefresh(u)
}

// Start launches the polling loop. It returns immediately; the loop runs
// until ctx is cancelled or Stop is called. Start does not perform an
// immediate refresh; call FirstRefresh beforehand.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.wg.Add(1)
	go c.loop(ctx)
	return nil
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.opts.Logger.Warn("status refresh failed, keeping previous snapshot",
					"serial", c.opts.Serial,
					"error", err,
				)
			}
		}
	}
}

// Stop ends the polling loop and waits for an in-flight refresh to finish.
// It is safe to call more than once and before Start.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// Stats returns a copy of the polling statistics.
func (c *Coordinator) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

func (c *Coordinator) recordSuccess(at time.Time) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.Polls++
	c.stats.Ready = true
	c.stats.LastSuccess = at
}

func (c *Coordinator) recordFailure(at time.Time, err error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.Polls++
	c.stats.Failures++
	c.stats.LastFailure = at
	c.stats.LastError = err.Error()
}

// Healthy reports whether the latest refresh succeeded.
func (c *Coordinator) Healthy() bool {
	s := c.Stats()
	return s.Ready && !s.LastSuccess.Before(s.LastFailure)
}
