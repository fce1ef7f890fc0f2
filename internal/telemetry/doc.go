// Package telemetry wraps OpenTelemetry SDK initialization, giving the
// broker a single TracerProvider/MeterProvider setup that the write
// pipeline, search, and export pipeline draw spans from via Tracer().
// When telemetry is disabled, a noop implementation is installed and no
// external service is ever dialed.
package telemetry
