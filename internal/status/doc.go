// Package status tracks the runtime state of Stream Lights for the
// operator API and the MQTT health report.
//
// The Tracker is fed by callbacks (session state changes, registration
// result, device map load) and read through Snapshot. The HealthReporter
// publishes a snapshot to streamlights/system/health at a fixed interval.
package status
