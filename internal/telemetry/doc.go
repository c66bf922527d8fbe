// Package telemetry sets up OpenTelemetry tracing and metrics export for
// contextsync.
//
// When enabled, spans (one per auto-sync cycle and per pull) and the HTTP and
// MCP instruments are exported over OTLP to a collector. When disabled, the
// global no-op providers stay in place and instrumentation costs nothing.
//
// Configuration:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc        # or http/protobuf
//	  sample_rate: 1.0
//	  export_interval: 15s
//
// Telemetry failures never stop the daemon. A provider that cannot be built
// marks the instance degraded and the rest keeps working.
//
// Tests use TestTelemetry, which records spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	coord := autosync.NewCoordinator(..., autosync.WithTracerProvider(tt.TracerProvider()))
//	...
//	tt.AssertSpanExists(t, "autosync.cycle")
package telemetry
