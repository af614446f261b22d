// Package bridge connects one EZVIZ device to the Gray Logic MQTT bus.
//
// It follows the Gray Logic bridge interface:
//
//   - graylogic/state/ezviz/{serial}/{key}  retained observation state,
//     published only when a value or its availability changes
//   - graylogic/event/ezviz/{serial}        alarm events as pulses switch on
//   - graylogic/command/ezviz/{serial}      unlock and refresh commands
//   - graylogic/ack/ezviz/{serial}          command acknowledgements
//   - graylogic/request/ezviz/{request_id}  read_state, refresh, device_info
//   - graylogic/response/ezviz/{request_id} request replies
//   - graylogic/health/ezviz                retained periodic health (and LWT)
//
// The bridge is an observation.Listener; it never polls the device itself.
package bridge
