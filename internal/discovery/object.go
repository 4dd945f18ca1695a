package discovery

import (
	"fmt"

	"github.com/nerrad567/twc-director/internal/twc"
)

// Kind tags what a discovery Object describes.
type Kind int

const (
	// KindPeripheral is a charger the platforms build entities for.
	KindPeripheral Kind = iota

	// KindController is another master on the bus. Platforms ignore it.
	KindController
)

func (k Kind) String() string {
	switch k {
	case KindPeripheral:
		return "peripheral"
	case KindController:
		return "controller"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Object is one discovery event. It carries a reference only; consumers
// read live device state after receipt.
type Object struct {
	Kind Kind

	// Device is set for KindPeripheral.
	Device twc.Device

	// Address is the bus address for both kinds.
	Address uint16
}

// Peripheral wraps a discovered device.
func Peripheral(d twc.Device) Object {
	return Object{Kind: KindPeripheral, Device: d, Address: d.Identity().Address}
}

// Controller describes another master seen at address.
func Controller(address uint16) Object {
	return Object{Kind: KindController, Address: address}
}

// key identifies an object for duplicate suppression.
func (o Object) key() string {
	if o.Kind == KindPeripheral {
		return "p:" + o.Device.Identity().String()
	}
	return fmt.Sprintf("c:%04X", o.Address)
}
