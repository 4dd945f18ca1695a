// Package mqtt provides MQTT client connectivity for TWC Director.
//
// MQTT is the director's only link to the RS485 gateway process that owns
// the serial bus, and it is also where entity state, value writes and
// trigger events are exposed:
//
//	RS485 gateway <-> MQTT broker <-> TWC Director <-> dashboards
//
// This package manages:
//   - Connection with auto-reconnect and subscription restore
//   - Publishing with QoS validation and a size cap
//   - Last Will and Testament on twcdirector/system/status
//   - Topic builders and parsers for the twcdirector/ tree
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllGatewayTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        gt, err := mqtt.ParseGatewayTopic(topic)
//	        ...
//	    })
package mqtt
