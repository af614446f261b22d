package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/command"
	"github.com/nerrad567/gray-logic-ezviz/internal/coordinator"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
	"github.com/nerrad567/gray-logic-ezviz/internal/session"
	"github.com/nerrad567/gray-logic-ezviz/internal/status"
	"github.com/nerrad567/gray-logic-ezviz/internal/telemetry"
)

const defaultCloseTimeout = 10 * time.Second

// Client is the cloud client capability the integration drives.
// *ezviz.Client satisfies it.
type Client interface {
	session.Client
	coordinator.Fetcher
	command.Unlocker
	observation.ImageFetcher
}

// Logger is the logging interface used by the integration and handed to
// every component it creates. *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an Integration.
type Options struct {
	Client Client
	Serial string

	// Account and Region key the stored cloud session.
	Account string
	Region  string
	Store   session.TokenStore

	// Location is the timezone of device alarm times.
	Location *time.Location

	PollInterval  time.Duration
	FetchTimeout  time.Duration
	PulseDuration time.Duration

	// Recorders receive poll, alarm and unlock outcomes.
	Recorders telemetry.Recorders

	// Clock drives alarm pulses; Now drives snapshot timestamps. Both
	// default to the system clock.
	Clock observation.Clock
	Now   func() time.Time

	Logger Logger
}

// runtime is everything created by one Setup.
type runtime struct {
	session     *session.Session
	coordinator *coordinator.Coordinator
	dispatcher  *command.Dispatcher
	set         *observation.Set
	identity    Identity
	caps        command.Capabilities
	cancel      context.CancelFunc
}

// Integration is the context object of one configured device.
//
// Listeners and subscribers registered with AddListener and AddSubscriber
// survive Reload: they are attached to the components of every Setup.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Integration struct {
	opts Options

	lifecycleMu sync.Mutex

	mu          sync.RWMutex
	rt          *runtime
	listeners   []observation.Listener
	subscribers []coordinator.Subscriber
}

// New creates an integration. It does not contact the cloud until Setup.
func New(opts Options) (*Integration, error) {
	if opts.Client == nil {
		return nil, errors.New("integration: client is required")
	}
	if opts.Serial == "" {
		return nil, errors.New("integration: serial is required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.PulseDuration <= 0 {
		opts.PulseDuration = observation.DefaultPulseDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Integration{opts: opts}, nil
}

// AddListener registers a listener for observation changes.
func (i *Integration) AddListener(l observation.Listener) {
	i.mu.Lock()
	i.listeners = append(i.listeners, l)
	rt := i.rt
	i.mu.Unlock()

	if rt != nil {
		rt.set.AddListener(l)
	}
}

// AddSubscriber registers a subscriber for coordinator updates.
func (i *Integration) AddSubscriber(s coordinator.Subscriber) {
	i.mu.Lock()
	i.subscribers = append(i.subscribers, s)
	rt := i.rt
	i.mu.Unlock()

	if rt != nil {
		rt.coordinator.Subscribe(s)
	}
}

// Setup brings the device up.
//
// It opens the cloud session, probes capabilities, builds the coordinator,
// observation set and dispatcher, and performs the first refresh. Only
// when that refresh succeeds does polling start. On failure nothing is left
// running and the stored session is kept for the retry.
//
// Parameters:
//   - ctx: Bounds the login and the first refresh (polling itself runs
//     until Close)
//
// Returns:
//   - error: ErrNotReady wrapping the cause (check ezviz.ErrAuthentication
//     to tell rejected credentials from an unreachable cloud),
//     ErrAlreadySetUp on a running integration
func (i *Integration) Setup(ctx context.Context) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	i.mu.RLock()
	running := i.rt != nil
	i.mu.RUnlock()
	if running {
		return ErrAlreadySetUp
	}

	o := i.opts
	sess, err := session.Open(ctx, o.Client, session.Options{
		Account: o.Account,
		Region:  o.Region,
		Store:   o.Store,
		Logger:  o.Logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	caps := sess.DetectCapabilities(ctx, o.Serial)
	identity := Identity{Serial: o.Serial, Name: sess.DisplayName(ctx, o.Serial)}

	coord, err := coordinator.New(coordinator.Options{
		Fetcher:  o.Client,
		Serial:   o.Serial,
		Interval: o.PollInterval,
		Timeout:  o.FetchTimeout,
		Logger:   o.Logger,
		Recorder: o.Recorders,
		Now:      o.Now,
	})
	if err != nil {
		return err
	}

	dispatcher, err := command.NewDispatcher(command.Options{
		Unlocker: o.Client,
		Serial:   o.Serial,
		UserID:   sess.UserID(),
		Logger:   o.Logger,
		Recorder: o.Recorders,
	})
	if err != nil {
		return err
	}

	set, err := observation.NewSet(observation.Options{
		Serial:        o.Serial,
		Location:      o.Location,
		PulseDuration: o.PulseDuration,
		Capabilities:  caps,
		Executor:      dispatcher,
		Images:        o.Client,
		Snapshots:     coord,
		Clock:         o.Clock,
		Logger:        o.Logger,
		Recorder:      o.Recorders,
	})
	if err != nil {
		return err
	}

	i.mu.RLock()
	listeners := append([]observation.Listener(nil), i.listeners...)
	subscribers := append([]coordinator.Subscriber(nil), i.subscribers...)
	i.mu.RUnlock()

	// Subscribers see each update before the observation set does.
	for _, s := range subscribers {
		coord.Subscribe(s)
	}
	coord.Subscribe(set)
	for _, l := range listeners {
		set.AddListener(l)
	}

	if err := coord.FirstRefresh(ctx); err != nil {
		set.Close()
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := coord.Start(runCtx); err != nil {
		cancel()
		set.Close()
		return err
	}

	i.mu.Lock()
	i.rt = &runtime{
		session:     sess,
		coordinator: coord,
		dispatcher:  dispatcher,
		set:         set,
		identity:    identity,
		caps:        caps,
		cancel:      cancel,
	}
	// Registrations made while the first refresh ran saw no runtime.
	lateListeners := append([]observation.Listener(nil), i.listeners[len(listeners):]...)
	lateSubscribers := append([]coordinator.Subscriber(nil), i.subscribers[len(subscribers):]...)
	i.mu.Unlock()

	for _, s := range lateSubscribers {
		coord.Subscribe(s)
	}
	for _, l := range lateListeners {
		set.AddListener(l)
	}

	o.Logger.Info("device set up",
		"serial", o.Serial,
		"name", identity.Name,
		"door", caps.Door,
		"gate", caps.Gate,
	)
	return nil
}

// Close tears the device down: polling stops, pulse timers are cancelled
// and the cloud session is logged out. Logout failures are logged only.
// Close on an integration that is not set up does nothing.
func (i *Integration) Close(ctx context.Context) {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()
	i.close(ctx)
}

func (i *Integration) close(ctx context.Context) {
	i.mu.Lock()
	rt := i.rt
	i.rt = nil
	i.mu.Unlock()
	if rt == nil {
		return
	}

	rt.cancel()
	rt.coordinator.Stop()
	rt.set.Close()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCloseTimeout)
		defer cancel()
	}
	if err := rt.session.Close(ctx); err != nil {
		i.opts.Logger.Warn("cloud logout failed", "serial", i.opts.Serial, "error", err)
	}

	i.opts.Logger.Info("device unloaded", "serial", i.opts.Serial)
}

// Reload closes and sets the device up again.
func (i *Integration) Reload(ctx context.Context) error {
	i.lifecycleMu.Lock()
	i.close(ctx)
	i.lifecycleMu.Unlock()

	return i.Setup(ctx)
}

func (i *Integration) current() (*runtime, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.rt == nil {
		return nil, ErrNotSetUp
	}
	return i.rt, nil
}

// Ready reports whether the device is set up.
func (i *Integration) Ready() bool {
	_, err := i.current()
	return err == nil
}

// Serial returns the configured device serial.
func (i *Integration) Serial() string {
	return i.opts.Serial
}

// Identity returns the device identity. Before Setup the name is empty.
func (i *Integration) Identity() Identity {
	rt, err := i.current()
	if err != nil {
		return Identity{Serial: i.opts.Serial}
	}
	return rt.identity
}

// Capabilities returns the unlock actions of the device.
func (i *Integration) Capabilities() command.Capabilities {
	rt, err := i.current()
	if err != nil {
		return command.Capabilities{}
	}
	return rt.caps
}

// Snapshot returns the latest snapshot, if any.
func (i *Integration) Snapshot() (status.Snapshot, bool) {
	rt, err := i.current()
	if err != nil {
		return status.Snapshot{}, false
	}
	return rt.coordinator.Snapshot()
}

// Observations returns the current observations sorted by key.
func (i *Integration) Observations() []observation.Observation {
	rt, err := i.current()
	if err != nil {
		return nil
	}
	return rt.set.Observations()
}

// Observation returns one observation by key.
func (i *Integration) Observation(key string) (observation.Observation, bool) {
	rt, err := i.current()
	if err != nil {
		return observation.Observation{}, false
	}
	return rt.set.Observation(key)
}

// Buttons returns the unlock buttons of the device.
func (i *Integration) Buttons() []*observation.Button {
	rt, err := i.current()
	if err != nil {
		return nil
	}
	return rt.set.Buttons()
}

// Execute runs an unlock action through its button.
//
// Returns:
//   - command.Result: Outcome; Success=false is a normal failed command
//   - error: ErrNotSetUp, or observation.ErrUnsupported for an action the
//     device has no button for
func (i *Integration) Execute(ctx context.Context, action command.Action) (command.Result, error) {
	rt, err := i.current()
	if err != nil {
		return command.Result{Action: action}, err
	}
	return rt.set.Press(ctx, action)
}

// SnapshotImage returns the latest alarm picture.
//
// Returns:
//   - []byte: Image bytes
//   - error: observation.ErrNoImage when there is none, ErrNotSetUp
func (i *Integration) SnapshotImage(ctx context.Context) ([]byte, error) {
	rt, err := i.current()
	if err != nil {
		return nil, err
	}
	camera := rt.set.Camera()
	if camera == nil {
		return nil, observation.ErrNoImage
	}
	return camera.Image(ctx)
}

// Refresh polls the device immediately.
func (i *Integration) Refresh(ctx context.Context) error {
	rt, err := i.current()
	if err != nil {
		return err
	}
	return rt.coordinator.Refresh(ctx)
}

// Stats returns polling statistics. Before Setup it returns the zero value.
func (i *Integration) Stats() coordinator.Stats {
	rt, err := i.current()
	if err != nil {
		return coordinator.Stats{}
	}
	return rt.coordinator.Stats()
}

// Healthy reports whether the device is set up and its latest refresh
// succeeded.
func (i *Integration) Healthy() bool {
	rt, err := i.current()
	if err != nil {
		return false
	}
	return rt.coordinator.Healthy()
}

// Devices lists the devices of the account through the current session.
func (i *Integration) Devices(ctx context.Context) ([]session.Device, error) {
	rt, err := i.current()
	if err != nil {
		return nil, err
	}
	return rt.session.ListDevices(ctx)
}
