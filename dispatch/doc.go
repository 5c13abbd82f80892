// Package dispatch sends security-sensitive notifications through a flaky,
// rate-capped mail provider without letting that provider's problems spread.
//
// Every [Dispatcher.Send] passes, in order:
//
//  1. a [RateGate]: a fixed-size reservoir refilled every interval; an empty
//     reservoir rejects with [ErrRateLimited] and the caller decides whether to
//     wait ([Dispatcher.SendWait]) or give up;
//  2. a [Breaker]: CLOSED → OPEN after N consecutive failures, OPEN fails fast
//     with [ErrCircuitOpen] until the retry time, then a single HALF_OPEN probe
//     at a time; M consecutive probe successes close it, any probe failure
//     reopens it with a fresh timeout;
//  3. the [Transport] call, bounded by a per-send timeout. Failures surface as
//     [ErrTransport].
//
// State is in-memory and per instance: construct one Dispatcher per process (or
// per test) and inject it. A restart starts CLOSED with a full reservoir.
package dispatch
