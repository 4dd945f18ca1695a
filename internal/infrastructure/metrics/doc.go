// Package metrics exposes TWC Director's Prometheus metrics.
//
// Collectors cover the discovery fan-out (broadcasts, duplicates, queue
// depth per platform), telemetry dispatch (messages, callback failures),
// gateway commands (count, latency, restarts), attached entities and
// trigger event delivery. The registry is private to the process and is
// served by the HTTP API at metrics.path.
package metrics
