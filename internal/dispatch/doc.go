// Package dispatch turns audience events into light commands.
//
// Channel-point redemptions are matched by reward title (trimmed,
// case-insensitive) against the configured reward table. Chat lines are
// parsed into commands:
//
//	color <name|hex> [lamp]
//	power on|off [lamp]
//	brightness <0-100> [lamp]
//
// Color input is resolved by the color package. An unknown color gets one
// corrective chat reply addressed to the user and no device call. Lamps map
// to bridge device names in config and then to bridge ids through the
// device map loaded after registration.
//
// Every executed or rejected action is reported to the configured sinks:
// the SQLite command log, the MQTT mirror, and InfluxDB telemetry.
package dispatch
