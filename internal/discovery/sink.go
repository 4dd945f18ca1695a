package discovery

import (
	"context"

	"github.com/nerrad567/twc-director/internal/twc"
)

// ManagerSink adapts a Broadcaster to twc.DiscoverySink.
type ManagerSink struct {
	Broadcaster *Broadcaster
}

// PeripheralFound publishes a KindPeripheral object.
func (s ManagerSink) PeripheralFound(ctx context.Context, p *twc.Peripheral) error {
	_, err := s.Broadcaster.Publish(ctx, Peripheral(p))
	return err
}

// ControllerFound publishes a KindController object.
func (s ManagerSink) ControllerFound(ctx context.Context, address uint16) error {
	_, err := s.Broadcaster.Publish(ctx, Controller(address))
	return err
}

var _ twc.DiscoverySink = ManagerSink{}
