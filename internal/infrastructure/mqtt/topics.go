package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicPrefix is the root of every topic the director uses.
const TopicPrefix = "twcdirector"

// Topic segments shared by builders and parsers.
const (
	segmentGateway   = "gateway"
	segmentTelemetry = "telemetry"
	segmentAck       = "ack"
	segmentEntity    = "entity"
	segmentSet       = "set"
)

// Topics provides builders for director MQTT topics.
//
// Gateway addresses are rendered as four lowercase hex digits:
//
//	topics := mqtt.Topics{}
//	topics.GatewayCommand(0x8a3f) // "twcdirector/gateway/8a3f/command"
type Topics struct{}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus carries the retained online/offline status and the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// =============================================================================
// Gateway Topics
// =============================================================================

// GatewayTelemetry is where the RS485 gateway publishes decoded messages.
//
// Example: twcdirector/gateway/8a3f/telemetry/TWC_STATUS
func (Topics) GatewayTelemetry(address uint16, category string) string {
	return fmt.Sprintf("%s/%s/%04x/%s/%s", TopicPrefix, segmentGateway, address, segmentTelemetry, category)
}

// AllGatewayTelemetry matches telemetry for every address and category.
func (Topics) AllGatewayTelemetry() string {
	return fmt.Sprintf("%s/%s/+/%s/+", TopicPrefix, segmentGateway, segmentTelemetry)
}

// GatewayCommand is where commands for one peripheral are sent.
func (Topics) GatewayCommand(address uint16) string {
	return fmt.Sprintf("%s/%s/%04x/command", TopicPrefix, segmentGateway, address)
}

// GatewayAck is where the gateway acknowledges commands for one peripheral.
func (Topics) GatewayAck(address uint16) string {
	return fmt.Sprintf("%s/%s/%04x/%s", TopicPrefix, segmentGateway, address, segmentAck)
}

// AllGatewayAcks matches command acknowledgements for every address.
func (Topics) AllGatewayAcks() string {
	return fmt.Sprintf("%s/%s/+/%s", TopicPrefix, segmentGateway, segmentAck)
}

// GatewayControl carries bus-wide CONFIGURE and SHUTDOWN messages.
func (Topics) GatewayControl() string {
	return fmt.Sprintf("%s/%s/control", TopicPrefix, segmentGateway)
}

// =============================================================================
// Entity Topics
// =============================================================================

// EntityState carries the retained state of one entity.
//
// Example: twcdirector/entity/A1234_8A3F_total_kwh/state
func (Topics) EntityState(uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/state", TopicPrefix, segmentEntity, uniqueID)
}

// EntityCommand receives value writes for one entity.
func (Topics) EntityCommand(uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, segmentEntity, uniqueID, segmentSet)
}

// AllEntityCommands matches value writes for every entity.
func (Topics) AllEntityCommands() string {
	return fmt.Sprintf("%s/%s/+/%s", TopicPrefix, segmentEntity, segmentSet)
}

// Event carries trigger events for one registry device.
func (Topics) Event(deviceID string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, deviceID)
}

// =============================================================================
// Parsers
// =============================================================================

// GatewayTopic is the parsed form of a gateway telemetry or ack topic.
type GatewayTopic struct {
	Address  uint16
	Ack      bool
	Category string
}

// ParseGatewayTopic extracts the address (and category) from a topic built
// by GatewayTelemetry or GatewayAck.
func ParseGatewayTopic(topic string) (GatewayTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != TopicPrefix || parts[1] != segmentGateway {
		return GatewayTopic{}, fmt.Errorf("%w: %q", ErrUnexpectedTopic, topic)
	}

	addr, err := strconv.ParseUint(parts[2], 16, 16)
	if err != nil {
		return GatewayTopic{}, fmt.Errorf("%w: bad address in %q", ErrUnexpectedTopic, topic)
	}

	switch {
	case len(parts) == 4 && parts[3] == segmentAck:
		return GatewayTopic{Address: uint16(addr), Ack: true}, nil
	case len(parts) == 5 && parts[3] == segmentTelemetry && parts[4] != "":
		return GatewayTopic{Address: uint16(addr), Category: parts[4]}, nil
	default:
		return GatewayTopic{}, fmt.Errorf("%w: %q", ErrUnexpectedTopic, topic)
	}
}

// ParseEntityCommand returns the unique ID addressed by an EntityCommand topic.
func ParseEntityCommand(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != segmentEntity ||
		parts[3] != segmentSet || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrUnexpectedTopic, topic)
	}
	return parts[2], nil
}
