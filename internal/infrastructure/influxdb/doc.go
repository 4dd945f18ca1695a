// Package influxdb records charger history in InfluxDB v2.
//
// Two measurements are written:
//   - entity_state: numeric entity values as the director presents them
//     (scaled, rounded), tagged by unique_id, device_id and platform
//   - twc_telemetry: raw gateway fields, tagged by serial, address and
//     message category
//
// Writes are batched and non-blocking. The integration is optional; when
// influxdb.enabled is false Connect returns ErrDisabled and callers run
// without history.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
//	defer client.Close()
package influxdb
