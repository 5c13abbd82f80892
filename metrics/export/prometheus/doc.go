// Package prometheus renders sessionguard engine metrics in the Prometheus text
// exposition format.
//
// [New] wraps a sessionguard.Engine and exposes an [http.Handler] for a
// /metrics route. Counters are named sessionguard_*_total; the validation
// latency histogram is sessionguard_validate_latency_seconds. When the engine
// has a mail transport the notification circuit state and rate gate reservoir
// are exported as gauges.
//
// Nothing is registered in a global registry; callers mount the handler.
package prometheus
