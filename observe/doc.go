// Package observe provides core.Observer implementations: fan-out and kind
// filtering, a structured logging sink, an in-memory recorder for tests and
// an OpenTelemetry sink that turns node events into spans and metrics.
//
// Observers run synchronously on the goroutine that raised the event, so
// every implementation here is safe for concurrent use and never blocks on
// I/O beyond what the wrapped logger or exporter does.
package observe
