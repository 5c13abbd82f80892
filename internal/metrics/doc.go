// Package metrics keeps the in-process counters and the validation latency
// histogram that the engine updates on every operation.
//
// Each [MetricID] owns one padded atomic slot, so concurrent writers on
// different counters never share a cache line. The histogram has a fixed set
// of buckets and records without allocating.
//
// Readers take a [Snapshot]. The OpenTelemetry and Prometheus exporters under
// metrics/export consume snapshots through the root package; nothing here
// performs I/O or registers global state.
package metrics
