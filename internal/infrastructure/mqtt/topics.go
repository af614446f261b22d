package mqtt

import "fmt"

// TopicPrefix is the root of every Gray Logic topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{address}.
// For this bridge the protocol is "ezviz" and the address is the device
// serial, optionally followed by an observation key.
const TopicPrefix = "graylogic"

// Protocol is the protocol segment used by this bridge.
const Protocol = "ezviz"

// Topics builds topic names for one protocol.
//
//	topics := mqtt.Topics{Protocol: "ezviz"}
//	topics.State("Q123", "motion") // graylogic/state/ezviz/Q123/motion
type Topics struct {
	Protocol string
}

func (t Topics) protocol() string {
	if t.Protocol == "" {
		return Protocol
	}
	return t.Protocol
}

// State returns the retained state topic for one observation of a device.
//
// Example: graylogic/state/ezviz/Q123/doorbell_ringing
func (t Topics) State(serial, key string) string {
	return fmt.Sprintf("%s/state/%s/%s/%s", TopicPrefix, t.protocol(), serial, key)
}

// Command returns the topic commands for a device arrive on.
//
// Example: graylogic/command/ezviz/Q123
func (t Topics) Command(serial string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, t.protocol(), serial)
}

// Ack returns the topic command acknowledgements are published to.
//
// Example: graylogic/ack/ezviz/Q123
func (t Topics) Ack(serial string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, t.protocol(), serial)
}

// Event returns the topic alarm events for a device are published to.
//
// Example: graylogic/event/ezviz/Q123
func (t Topics) Event(serial string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, t.protocol(), serial)
}

// Request returns the request topic pattern for this protocol.
//
// Pattern: graylogic/request/ezviz/+
func (t Topics) Request() string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefix, t.protocol())
}

// Response returns the topic a request's reply is published to.
//
// Example: graylogic/response/ezviz/req-abc123
func (t Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, t.protocol(), requestID)
}

// Health returns the retained health topic of the bridge. It doubles as
// the LWT topic.
//
// Example: graylogic/health/ezviz
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, t.protocol())
}
