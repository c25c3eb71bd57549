// Package telemetry installs the global OpenTelemetry trace and metric
// providers used by every insightverse package.
//
// Packages obtain tracers with otel.Tracer at init time and never hold a
// reference to this package. A collector that cannot be reached leaves the
// daemon running on the no-op globals with the failure listed by Problems.
package telemetry
