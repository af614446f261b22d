// Package observation derives typed device observations from status
// snapshots.
//
// A Set subscribes to the coordinator and maintains:
//
//   - sensors: the twelve presentation values (name, signal, motion, ...)
//     with their units, icons and diagnostic flags
//   - the motion binary sensor
//   - one AlarmPulse per alarm category, turning the level-style
//     "last alarm name + time" pair into a short on-pulse per new event
//   - the snapshot camera serving the latest alarm picture
//   - unlock buttons for the capabilities the device supports
//
// Listeners registered with AddListener receive every observation whose
// value or availability changed, including pulse resets fired by timers
// between polls.
package observation
