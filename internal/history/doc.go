// Package history keeps a local record of device status changes and alarm
// triggers in SQLite.
//
// A snapshot row is written only when a refresh changes at least one field,
// so a device polled every two seconds does not grow the table while idle.
// Alarm events are written when an alarm pulse switches on. Both tables are
// read newest first and pruned by age.
package history
