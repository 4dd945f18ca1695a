package twc

import "fmt"

// Category names a class of gateway message. Callbacks are registered
// per category.
type Category string

// Message categories published by the RS485 gateway.
const (
	CategoryPeripheral   Category = "TWC_PERIPHERAL"
	CategoryStatus       Category = "TWC_STATUS"
	CategoryMeter        Category = "TWC_METER"
	CategoryVIN          Category = "TWC_VIN"
	CategoryCarConnected Category = "TWC_CAR_CONNECTED"

	// CategoryController announces another master on the bus.
	CategoryController Category = "TWC_CONTROLLER"
)

// Telemetry keys carried in Message.Fields.
const (
	FieldTotalKWh         = "total_kwh"
	FieldVoltageL1        = "voltage_phase_l1"
	FieldVoltageL2        = "voltage_phase_l2"
	FieldVoltageL3        = "voltage_phase_l3"
	FieldCurrentL1        = "current_phase_l1"
	FieldCurrentL2        = "current_phase_l2"
	FieldCurrentL3        = "current_phase_l3"
	FieldChargeState      = "charge_state"
	FieldCurrentAvailable = "current_available"
	FieldCurrentDelivered = "current_delivered"
)

// Status is the charge state code reported in TWC_STATUS messages.
type Status uint8

// Known status codes.
const (
	StatusReady                Status = 0x00
	StatusCharging             Status = 0x01
	StatusError                Status = 0x02
	StatusPluggedInDoNotCharge Status = 0x03
	StatusPluggedInScheduled   Status = 0x04
	StatusBusy                 Status = 0x05
	StatusRaiseCurrent         Status = 0x06
	StatusLowerCurrent         Status = 0x07
	StatusStartingToCharge     Status = 0x08
	StatusLimitPower           Status = 0x09
	StatusAdjustmentComplete   Status = 0x0A
)

var statusNames = map[Status]string{
	StatusReady:                "READY",
	StatusCharging:             "CHARGING",
	StatusError:                "ERROR",
	StatusPluggedInDoNotCharge: "PLUGGED_IN_DO_NOT_CHARGE",
	StatusPluggedInScheduled:   "PLUGGED_IN_CHARGE_SCHEDULED",
	StatusBusy:                 "BUSY",
	StatusRaiseCurrent:         "RAISE_CURRENT",
	StatusLowerCurrent:         "LOWER_CURRENT",
	StatusStartingToCharge:     "STARTING_TO_CHARGE",
	StatusLimitPower:           "LIMIT_POWER",
	StatusAdjustmentComplete:   "ADJUSTMENT_COMPLETE",
}

// Name returns the symbolic name of a known status code.
func (s Status) Name() (string, bool) {
	name, ok := statusNames[s]
	return name, ok
}

func (s Status) String() string {
	if name, ok := s.Name(); ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

// Command is an operation the gateway performs on one peripheral.
type Command string

// Peripheral commands.
const (
	CommandOpenContactors  Command = "OPEN_CONTACTORS"
	CommandCloseContactors Command = "CLOSE_CONTACTORS"
	CommandSessionCurrent  Command = "SESSION_CURRENT"
)

// Bus-wide control messages.
const (
	ControlConfigure = "CONFIGURE"
	ControlShutdown  = "SHUTDOWN"
)

// Message is a decoded gateway telemetry message. Pointer fields are only
// applied when present.
type Message struct {
	Serial          string             `json:"serial,omitempty"`
	Fields          map[string]float64 `json:"fields,omitempty"`
	VIN             *string            `json:"vin,omitempty"`
	CarConnected    *bool              `json:"car_connected,omitempty"`
	FirmwareVersion string             `json:"firmware_version,omitempty"`
	RestartCounter  *int               `json:"restart_counter,omitempty"`

	// MaxCurrent is the charger's rated maximum in centiamps.
	MaxCurrent *int `json:"max_current,omitempty"`
}

// CommandMessage is published on the gateway command topic.
type CommandMessage struct {
	ID      string         `json:"id"`
	Address uint16         `json:"address"`
	Command Command        `json:"command"`
	Payload map[string]int `json:"payload,omitempty"`
}

// Ack answers a CommandMessage with the same ID.
type Ack struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ControlMessage is published on the gateway control topic.
type ControlMessage struct {
	Command          string `json:"command"`
	SharedMaxCurrent int    `json:"shared_max_current,omitempty"`
	Interface        string `json:"interface,omitempty"`
}
