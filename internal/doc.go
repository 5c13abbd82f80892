// Package internal holds helpers private to sessionguard, currently opaque
// secret generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: flow orchestrators behind every Engine operation
//   - metrics: lock-free counters and latency histograms
//   - rate: Redis-backed failed-login budget
package internal
