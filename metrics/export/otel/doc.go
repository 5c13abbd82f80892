// Package otel binds sessionguard engine metrics to OpenTelemetry instruments.
//
// [New] registers one Int64ObservableCounter per engine counter, one
// Int64ObservableGauge per latency bucket, and gauges for the notification
// circuit and rate gate. A single callback reads the engine snapshot on every
// collection cycle. Callers own the MeterProvider and pass in a Meter.
package otel
