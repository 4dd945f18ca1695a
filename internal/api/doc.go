// Package api provides the HTTP REST API and WebSocket server for TWC Director.
//
// All routes live under /api/v1:
//
//	GET  /health                  director, broker and gateway health
//	GET  /metrics                 Prometheus exposition (when enabled)
//	GET  /entities                entities, filterable by platform and device_id
//	GET  /entities/{id}           one entity with its current value
//	PUT  /entities/{id}/value     write a number entity
//	GET  /devices                 registry records with their entity IDs
//	GET  /devices/{id}            one registry record
//	GET  /devices/{id}/triggers   automation triggers of a device
//	GET  /ws                      WebSocket event stream
//
// When security.jwt.secret is set, PUT requests need an HS256 bearer token
// and WebSocket clients pass the token as ?token=. Read endpoints stay open.
//
// The WebSocket hub is shared with the entity host, which broadcasts on the
// "entity.state_changed" and "device.trigger" channels. Clients subscribe
// with:
//
//	{"type": "subscribe", "id": "1", "payload": {"channels": ["entity.state_changed"]}}
//
// Lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
