package platform

import (
	"fmt"
	"math"

	"github.com/nerrad567/twc-director/internal/entity"
	"github.com/nerrad567/twc-director/internal/twc"
)

// Sensor keys that are not plain telemetry fields.
const (
	sensorKeyVIN = "vin"
)

// SensorType is one row of the sensor table.
type SensorType struct {
	Key         string
	Name        string
	DeviceClass string
	Unit        string
	StateClass  string

	// Scale multiplies the raw value. Zero means 1.
	Scale float64

	// Round is the number of decimals to round to; negative disables it.
	Round int

	// Format, when set, renders the value as a string with fmt.
	Format string
}

// SensorTable lists every sensor built for a wall charger.
var SensorTable = []SensorType{
	{Key: twc.FieldTotalKWh, Name: "Total Energy Delivered", DeviceClass: "energy", Unit: "kWh", StateClass: "total_increasing", Round: -1},
	{Key: twc.FieldVoltageL1, Name: "AC Voltage Phase 1", DeviceClass: "voltage", Unit: "V", Round: -1},
	{Key: twc.FieldVoltageL2, Name: "AC Voltage Phase 2", DeviceClass: "voltage", Unit: "V", Round: -1},
	{Key: twc.FieldVoltageL3, Name: "AC Voltage Phase 3", DeviceClass: "voltage", Unit: "V", Round: -1},
	{Key: twc.FieldCurrentL1, Name: "AC Current Phase 1", DeviceClass: "current", Unit: "A", Round: -1},
	{Key: twc.FieldCurrentL2, Name: "AC Current Phase 2", DeviceClass: "current", Unit: "A", Round: -1},
	{Key: twc.FieldCurrentL3, Name: "AC Current Phase 3", DeviceClass: "current", Unit: "A", Round: -1},
	{Key: twc.FieldChargeState, Name: "TWC Status", DeviceClass: "twcdirector__twc_status", Round: -1},
	{Key: twc.FieldCurrentAvailable, Name: "Charge Current Set", DeviceClass: "current", Unit: "A", Scale: 0.01, Round: 2, Format: "%.2f"},
	{Key: twc.FieldCurrentDelivered, Name: "Charge Current Delivered", DeviceClass: "current", Unit: "A", Scale: 0.01, Round: 2, Format: "%.2f"},
	{Key: sensorKeyVIN, Name: "Vehicle VIN", Round: -1},
}

// SensorBuilder builds one read-only entity per SensorTable row.
type SensorBuilder struct{}

// Kind implements Builder.
func (SensorBuilder) Kind() entity.Kind { return entity.KindSensor }

// Build implements Builder.
func (SensorBuilder) Build(d twc.Device) ([]*entity.Entity, error) {
	serial := d.Identity().Serial
	out := make([]*entity.Entity, 0, len(SensorTable))
	for _, st := range SensorTable {
		categories := []twc.Category{twc.CategoryStatus, twc.CategoryMeter, twc.CategoryPeripheral}
		if st.Key == sensorKeyVIN {
			categories = append(categories, twc.CategoryVIN)
		}

		e, err := entity.New(d, entity.Descriptor{
			Key:         st.Key,
			Name:        serial + " " + st.Name,
			Kind:        entity.KindSensor,
			DeviceClass: st.DeviceClass,
			Unit:        st.Unit,
			StateClass:  st.StateClass,
			Categories:  categories,
			Read:        st.reader(),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s SensorType) reader() entity.Reader {
	switch s.Key {
	case sensorKeyVIN:
		return func(d twc.Device) any { return d.VIN() }
	case twc.FieldChargeState:
		return func(d twc.Device) any {
			raw, _ := d.Value(twc.FieldChargeState)
			return ChargeState(raw)
		}
	}
	return func(d twc.Device) any {
		raw, _ := d.Value(s.Key)
		return s.Convert(raw)
	}
}

// Convert applies scale, rounding and format to a raw telemetry value.
func (s SensorType) Convert(raw float64) any {
	scale := s.Scale
	if scale == 0 {
		scale = 1
	}
	v := raw * scale
	if s.Round >= 0 {
		pow := math.Pow(10, float64(s.Round))
		v = math.Round(v*pow) / pow
	}
	if s.Format != "" {
		return fmt.Sprintf(s.Format, v)
	}
	return v
}

// ChargeState maps a raw status code to its symbolic name. Unknown codes
// are returned as the raw integer; non-integral values are returned as is.
func ChargeState(raw float64) any {
	if raw != math.Trunc(raw) || math.IsInf(raw, 0) {
		return raw
	}
	code := int(raw)
	if code < 0 || code > math.MaxUint8 {
		return code
	}
	if name, ok := twc.Status(code).Name(); ok {
		return name
	}
	return code
}
