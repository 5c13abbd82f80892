// Package rate throttles failed password attempts per login identifier.
//
// Counters live in Redis under "<prefix>al:<identifier>". The first failure in
// a window sets the counter's expiry to the cooldown; later failures only
// increment it. A successful login clears the counter.
//
// Outbound notification throttling is a separate concern handled by
// dispatch.RateGate.
package rate
