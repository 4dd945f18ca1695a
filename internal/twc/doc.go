// Package twc models Tesla Wall Charger peripherals on an RS485 bus.
//
// The director does not drive the serial line itself. A gateway process
// owns the RS485 interface and exchanges JSON messages with the director
// over MQTT:
//
//	twcdirector/gateway/<addr>/telemetry/<CATEGORY>   gateway -> director
//	twcdirector/gateway/<addr>/command                director -> gateway
//	twcdirector/gateway/<addr>/ack                    gateway -> director
//	twcdirector/gateway/control                       director -> gateway
//
// # Peripherals and callbacks
//
// Each Peripheral holds the latest reported state and a CallbackRegistry.
// Peripheral.Apply folds a message into the state and then invokes every
// Listener registered for the message's Category, in registration order.
// A failing listener is logged and does not stop the others.
//
// # Manager
//
// Manager subscribes to gateway telemetry, creates a Peripheral the first
// time a serial is reported at an address, and hands it to a DiscoverySink
// exactly once. It also implements Controller: commands are correlated
// with acks by ID and retried with exponential backoff when the gateway
// stays silent.
//
//	mgr, err := twc.NewManager(twc.ManagerOptions{
//	    MQTT:      mqttClient,
//	    Discovery: sink,
//	    Interface: "/dev/ttyUSB0",
//	})
//	if err := mgr.Start(ctx); err != nil { ... }
//	defer mgr.Shutdown(context.Background())
package twc
