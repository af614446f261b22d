package telemetry

import "time"

// PollRecorder receives poll outcomes.
type PollRecorder interface {
	ObservePoll(ok bool, duration time.Duration)
}

// AlarmRecorder receives alarm triggers.
type AlarmRecorder interface {
	AlarmTriggered(category string)
}

// UnlockRecorder receives unlock outcomes.
type UnlockRecorder interface {
	UnlockCompleted(action string, ok bool)
}

// Recorder is the union of the recorder interfaces. Both *metrics.Metrics
// and *Telemetry implement it.
type Recorder interface {
	PollRecorder
	AlarmRecorder
	UnlockRecorder
}

// Recorders fans every call out to each non-nil recorder in order.
type Recorders []Recorder

// ObservePoll implements coordinator.Recorder.
func (rs Recorders) ObservePoll(ok bool, duration time.Duration) {
	for _, r := range rs {
		if r != nil {
			r.ObservePoll(ok, duration)
		}
	}
}

// AlarmTriggered implements observation.Recorder.
func (rs Recorders) AlarmTriggered(category string) {
	for _, r := range rs {
		if r != nil {
			r.AlarmTriggered(category)
		}
	}
}

// UnlockCompleted implements command.Recorder.
func (rs Recorders) UnlockCompleted(action string, ok bool) {
	for _, r := range rs {
		if r != nil {
			r.UnlockCompleted(action, ok)
		}
	}
}
