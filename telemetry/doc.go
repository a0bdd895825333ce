// Package telemetry sets up logging, metrics and tracing for dotstar hosts.
//
// Loggers are zerolog loggers; components derive children carrying a
// "component" field. Metrics live in a private Prometheus registry served by
// Metrics.Handler. Tracing exports OpenTelemetry spans to a writer.
package telemetry
