// Package influxdb records Stream Lights telemetry in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Two measurements
// are written:
//
//   - audience_action: one point per executed, rejected or failed action,
//     tagged by source, action, lamp and outcome, with latency_ms
//   - session_state: one point per EventSub session state transition
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAudienceAction("chat", "color", "left", "executed", 38.2, time.Now())
//
// # Error Handling
//
// Writes never block or return errors; batch failures are delivered to the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
