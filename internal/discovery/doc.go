// Package discovery fans newly discovered devices out to platform
// processors.
//
// Each processor owns a Queue registered with the Broadcaster when the
// processor is built. Publish pushes one Object onto every queue that is
// registered at the moment of the call; a queue registered later does not
// see earlier discoveries, so the director registers all queues before the
// device manager starts.
//
// Queues are bounded. When a consumer falls behind, Publish blocks until
// space frees up or its context is cancelled.
//
//	b := discovery.NewBroadcaster(discovery.Options{Capacity: 16})
//	q, err := b.RegisterConsumer("sensor", 0)
//
//	obj, err := q.Get(ctx)
//	if err != nil { return err }
//	defer q.Done()
package discovery
