package observation

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/command"
	"github.com/nerrad567/gray-logic-ezviz/internal/coordinator"
	"github.com/nerrad567/gray-logic-ezviz/internal/ezviz"
)

// Logger is the logging interface used by observations.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder receives alarm triggers for metrics.
type Recorder interface {
	AlarmTriggered(category string)
}

// Options configures a Set.
type Options struct {
	Serial string

	// Location is the timezone of device alarm times.
	Location *time.Location

	// PulseDuration is how long alarm pulses stay on. Defaults to 3s.
	PulseDuration time.Duration

	Capabilities command.Capabilities
	Executor     Executor

	// Images and Snapshots back the snapshot camera. The camera is
	// omitted when either is nil.
	Images    ImageFetcher
	Snapshots SnapshotSource

	Clock    Clock
	Logger   Logger
	Recorder Recorder
}

// Set holds every observation of one device.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Set struct {
	opts    Options
	pulses  []*AlarmPulse
	camera  *SnapshotCamera
	buttons []*Button

	mu        sync.Mutex
	current   map[string]Observation
	available bool

	listenersMu sync.RWMutex
	listeners   []*listenerEntry
}

type listenerEntry struct {
	l Listener
}

// NewSet creates the observation set for one device.
func NewSet(opts Options) (*Set, error) {
	if opts.Serial == "" {
		return nil, errors.New("observation: serial is required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	s := &Set{
		opts:    opts,
		current: make(map[string]Observation),
		buttons: newButtons(opts.Capabilities, opts.Executor),
	}

	for _, cat := range AlarmCategories {
		var p *AlarmPulse
		p = NewAlarmPulse(cat, opts.PulseDuration, opts.Clock, func(bool) {
			s.publishPulse(p)
		})
		s.pulses = append(s.pulses, p)
	}

	if opts.Images != nil && opts.Snapshots != nil {
		s.camera = NewSnapshotCamera(opts.Images, opts.Snapshots, opts.Logger)
	}

	return s, nil
}

// Serial returns the device serial.
func (s *Set) Serial() string {
	return s.opts.Serial
}

// OnRefresh implements coordinator.Subscriber.
//
// A successful update feeds the alarm pulses and recomputes every
// observation. A failed update keeps the previous values; observations
// become unavailable only when no snapshot exists yet or the cloud
// rejected the session.
func (s *Set) OnRefresh(u coordinator.Update) {
	available := !u.Snapshot.IsZero() && !errors.Is(u.Err, ezviz.ErrAuthentication)

	s.mu.Lock()
	s.available = available
	s.mu.Unlock()

	if u.Err == nil {
		for _, p := range s.pulses {
			if p.Observe(u.Snapshot) {
				s.opts.Logger.Debug("alarm pulse triggered",
					"serial", s.opts.Serial,
					"category", p.Category().Key,
				)
				if s.opts.Recorder != nil {
					s.opts.Recorder.AlarmTriggered(p.Category().Key)
				}
			}
		}
	}

	at := s.opts.Clock.Now()
	next := make([]Observation, 0, len(Sensors)+1+len(s.pulses))
	for _, spec := range Sensors {
		next = append(next, spec.Observation(u.Snapshot, s.opts.Location, available, at))
	}
	next = append(next, motionObservation(u.Snapshot, available, at))
	for _, p := range s.pulses {
		next = append(next, pulseObservation(p, available, at))
	}

	s.mu.Lock()
	changed := s.apply(next)
	s.mu.Unlock()

	s.notify(changed)
}

// publishPulse re-renders one pulse after it switched on or off.
func (s *Set) publishPulse(p *AlarmPulse) {
	s.mu.Lock()
	obs := pulseObservation(p, s.available, s.opts.Clock.Now())
	changed := s.apply([]Observation{obs})
	s.mu.Unlock()

	s.notify(changed)
}

// apply stores observations and returns those that changed. Caller holds s.mu.
func (s *Set) apply(next []Observation) []Observation {
	var changed []Observation
	for _, obs := range next {
		prev, ok := s.current[obs.Key]
		if ok && prev.Available == obs.Available && reflect.DeepEqual(prev.Value, obs.Value) {
			continue
		}
		s.current[obs.Key] = obs
		changed = append(changed, obs)
	}
	return changed
}

func (s *Set) notify(changed []Observation) {
	if len(changed) == 0 {
		return
	}

	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	for i, e := range s.listeners {
		listeners[i] = e.l
	}
	s.listenersMu.RUnlock()

	for _, obs := range changed {
		for _, l := range listeners {
			l.ObservationChanged(s.opts.Serial, obs)
		}
	}
}

// AddListener registers l and returns a function that removes it.
func (s *Set) AddListener(l Listener) func() {
	entry := &listenerEntry{l: l}

	s.listenersMu.Lock()
	s.listeners = append(s.listeners, entry)
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(e *listenerEntry) bool { return e == entry })
	}
}

// Observations returns the current observations sorted by key. Alarm
// pulses are re-evaluated so a pulse past its duration reads off even if
// its timer has not fired yet.
func (s *Set) Observations() []Observation {
	s.mu.Lock()
	out := make([]Observation, 0, len(s.current))
	for _, obs := range s.current {
		out = append(out, obs)
	}
	s.mu.Unlock()

	for i := range out {
		if p := s.pulse(out[i].Key); p != nil {
			out[i].Value = p.IsOn()
		}
	}

	slices.SortFunc(out, func(a, b Observation) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Observation returns one observation by key.
func (s *Set) Observation(key string) (Observation, bool) {
	s.mu.Lock()
	obs, ok := s.current[key]
	s.mu.Unlock()

	if ok {
		if p := s.pulse(key); p != nil {
			obs.Value = p.IsOn()
		}
	}
	return obs, ok
}

// Pulses returns the alarm pulses in category order.
func (s *Set) Pulses() []*AlarmPulse {
	return slices.Clone(s.pulses)
}

func (s *Set) pulse(key string) *AlarmPulse {
	for _, p := range s.pulses {
		if p.Category().Key == key {
			return p
		}
	}
	return nil
}

// Camera returns the snapshot camera, or nil if none is configured.
func (s *Set) Camera() *SnapshotCamera {
	return s.camera
}

// Buttons returns the unlock buttons for supported capabilities.
func (s *Set) Buttons() []*Button {
	return slices.Clone(s.buttons)
}

// Press sends action through its button.
//
// Returns:
//   - command.Result: Outcome of the command
//   - error: ErrUnsupported if the device has no button for action
func (s *Set) Press(ctx context.Context, action command.Action) (command.Result, error) {
	for _, b := range s.buttons {
		if b.Action() == action {
			return b.Press(ctx), nil
		}
	}
	return command.Result{Action: action}, ErrUnsupported
}

// Close cancels every pending pulse timer.
func (s *Set) Close() {
	for _, p := range s.pulses {
		p.Close()
	}
}
