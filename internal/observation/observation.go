package observation

import "time"

// Kind groups observations by how they are presented.
type Kind string

const (
	KindSensor       Kind = "sensor"
	KindBinarySensor Kind = "binary_sensor"
)

// Observation is one derived, presentable device value.
type Observation struct {
	Key              string    `json:"key"`
	Kind             Kind      `json:"kind"`
	Name             string    `json:"name"`
	Value            any       `json:"value"`
	Available        bool      `json:"available"`
	DeviceClass      string    `json:"device_class,omitempty"`
	Unit             string    `json:"unit,omitempty"`
	Icon             string    `json:"icon,omitempty"`
	Diagnostic       bool      `json:"diagnostic,omitempty"`
	EnabledByDefault bool      `json:"enabled_by_default"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Listener receives observations whose value or availability changed.
// Calls are synchronous and must not block.
type Listener interface {
	ObservationChanged(serial string, obs Observation)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(serial string, obs Observation)

// ObservationChanged calls f.
func (f ListenerFunc) ObservationChanged(serial string, obs Observation) { f(serial, obs) }
