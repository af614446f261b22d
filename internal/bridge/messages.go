package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-ezviz/internal/command"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
)

// CommandMessage is sent from Core to the bridge to run a device command.
// Topic: graylogic/command/ezviz/{serial}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the Gray Logic device identifier.
	DeviceID string `json:"device_id"`

	// Command is "unlock_door", "unlock_gate" (or "door", "gate") or "refresh".
	Command string `json:"command"`

	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source"`
	UserID string `json:"user_id,omitempty"`
}

// CommandRefresh asks the bridge to poll the device immediately.
const CommandRefresh = "refresh"

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was carried out.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be carried out.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/ezviz/{serial}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`

	// LockNo is the lock that opened, for successful unlocks.
	LockNo int `json:"lock_no,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Retries is the number of further locks tried after the first.
	Retries int `json:"retries,omitempty"`
}

// Error codes for command and request failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeNotSupported      = "NOT_SUPPORTED"
	ErrCodeNotReady          = "NOT_READY"
	ErrCodeUnlockFailed      = "UNLOCK_FAILED"
)

// StateMessage carries one observation.
// Topic: graylogic/state/ezviz/{serial}/{key}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`

	Key         string `json:"key"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Available   bool   `json:"available"`
	DeviceClass string `json:"device_class,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// EventMessage announces an alarm pulse switching on.
// Topic: graylogic/event/ezviz/{serial}
type EventMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`

	// Event is the alarm category key, e.g. "doorbell_ringing".
	Event string `json:"event"`
	Name  string `json:"name"`
}

// RequestMessage is sent from Core for request/response operations.
// Topic: graylogic/request/ezviz/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is "read_state", "refresh" or "device_info".
	Action string `json:"action"`

	DeviceID string `json:"device_id,omitempty"`
}

// Request actions served by the bridge.
const (
	RequestReadState  = "read_state"
	RequestRefresh    = "refresh"
	RequestDeviceInfo = "device_info"
)

// ResponseMessage answers a request.
// Topic: graylogic/response/ezviz/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/ezviz
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string        `json:"bridge"`
	Timestamp     time.Time     `json:"timestamp"`
	Status        HealthStatus  `json:"status"`
	Version       string        `json:"version"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Device        *DeviceHealth `json:"device,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

// DeviceHealth summarises polling of the bridged device.
type DeviceHealth struct {
	Serial      string     `json:"serial"`
	Ready       bool       `json:"ready"`
	Polls       uint64     `json:"polls"`
	Failures    uint64     `json:"failures"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// newAck builds an acknowledgement for cmd.
func newAck(cmd CommandMessage, serial string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  mqtt.Protocol,
		Address:   serial,
	}
}

// newAckError builds a failed acknowledgement.
func newAckError(cmd CommandMessage, serial, code, message string, retries int) AckMessage {
	ack := newAck(cmd, serial, AckFailed)
	ack.Error = &AckError{Code: code, Message: message, Retries: retries}
	return ack
}

// newResultAck turns an unlock result into an acknowledgement.
func newResultAck(cmd CommandMessage, serial string, res command.Result) AckMessage {
	if res.Success {
		ack := newAck(cmd, serial, AckAccepted)
		ack.LockNo = res.LockNo
		return ack
	}

	message := "no lock accepted the unlock"
	if n := len(res.Attempts); n > 0 && res.Attempts[n-1].Error != "" {
		message = res.Attempts[n-1].Error
	}
	return newAckError(cmd, serial, ErrCodeUnlockFailed, message, max(len(res.Attempts)-1, 0))
}

// newStateMessage renders an observation for the state topic.
func newStateMessage(deviceID, serial string, obs observation.Observation) StateMessage {
	ts := obs.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return StateMessage{
		DeviceID:    deviceID,
		Timestamp:   ts.UTC(),
		Protocol:    mqtt.Protocol,
		Address:     serial,
		Key:         obs.Key,
		Kind:        string(obs.Kind),
		Name:        obs.Name,
		Value:       obs.Value,
		Available:   obs.Available,
		DeviceClass: obs.DeviceClass,
		Unit:        obs.Unit,
		Icon:        obs.Icon,
	}
}

// newEventMessage announces an alarm pulse.
func newEventMessage(deviceID, serial string, obs observation.Observation) EventMessage {
	return EventMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Protocol:  mqtt.Protocol,
		Address:   serial,
		Event:     obs.Key,
		Name:      obs.Name,
	}
}
