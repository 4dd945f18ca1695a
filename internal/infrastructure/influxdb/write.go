package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementEntityState = "entity_state"
	MeasurementTelemetry   = "twc_telemetry"
)

// EntityState is one numeric entity reading.
type EntityState struct {
	UniqueID string
	DeviceID string
	Platform string
	Value    float64
	Time     time.Time
}

// WriteEntityState records an entity's numeric state. Non-blocking.
//
// Example:
//
//	client.WriteEntityState(influxdb.EntityState{
//	    UniqueID: "A1234_8A3F_current_delivered",
//	    DeviceID: "A1234_8A3F",
//	    Platform: "sensor",
//	    Value:    12.34,
//	})
func (c *Client) WriteEntityState(s EntityState) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(entityStatePoint(s))
}

func entityStatePoint(s EntityState) *write.Point {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(MeasurementEntityState,
		map[string]string{
			"unique_id": s.UniqueID,
			"device_id": s.DeviceID,
			"platform":  s.Platform,
		},
		map[string]interface{}{"value": s.Value},
		ts)
}

// WriteTelemetry records the raw fields of one gateway message, tagged by
// charger identity and message category. Messages without numeric fields
// are skipped.
func (c *Client) WriteTelemetry(serial string, address uint16, category string, fields map[string]float64) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writer.WritePoint(telemetryPoint(serial, address, category, fields, time.Now()))
}

func telemetryPoint(serial string, address uint16, category string, fields map[string]float64, ts time.Time) *write.Point {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return write.NewPoint(MeasurementTelemetry,
		map[string]string{
			"serial":   serial,
			"address":  strconv.FormatUint(uint64(address), 16),
			"category": category,
		},
		values,
		ts)
}
