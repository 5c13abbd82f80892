package internaldefs

import (
	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/dispatch"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: sessionguard.MetricLoginSuccess, Name: "sessionguard_login_success_total", Help: "Successful logins that issued credentials."},
	{ID: sessionguard.MetricLoginFailure, Name: "sessionguard_login_failure_total", Help: "Failed login attempts."},
	{ID: sessionguard.MetricLoginRateLimited, Name: "sessionguard_login_rate_limited_total", Help: "Logins rejected by the failed-login throttle."},
	{ID: sessionguard.MetricMFARequired, Name: "sessionguard_mfa_required_total", Help: "Second-factor challenges issued."},
	{ID: sessionguard.MetricMFASuccess, Name: "sessionguard_mfa_success_total", Help: "Challenges redeemed successfully."},
	{ID: sessionguard.MetricMFAFailure, Name: "sessionguard_mfa_failure_total", Help: "Challenge redemptions rejected."},
	{ID: sessionguard.MetricCredentialsIssued, Name: "sessionguard_credentials_issued_total", Help: "Access and refresh pairs issued."},
	{ID: sessionguard.MetricRefreshSuccess, Name: "sessionguard_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: sessionguard.MetricRefreshFailure, Name: "sessionguard_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: sessionguard.MetricRefreshGraceReuse, Name: "sessionguard_refresh_grace_reuse_total", Help: "Refresh tokens honored again inside the grace window."},
	{ID: sessionguard.MetricRefreshReuseDetected, Name: "sessionguard_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented after the grace window."},
	{ID: sessionguard.MetricDemoteFailure, Name: "sessionguard_demote_failure_total", Help: "Rotations whose grace demotion write failed."},
	{ID: sessionguard.MetricValidateSuccess, Name: "sessionguard_validate_success_total", Help: "Access tokens validated."},
	{ID: sessionguard.MetricValidateFailure, Name: "sessionguard_validate_failure_total", Help: "Access tokens rejected."},
	{ID: sessionguard.MetricValidateUnavailable, Name: "sessionguard_validate_unavailable_total", Help: "Validations failed closed on a store error."},
	{ID: sessionguard.MetricLogout, Name: "sessionguard_logout_total", Help: "Successful logouts."},
	{ID: sessionguard.MetricRevokeOne, Name: "sessionguard_revoke_one_total", Help: "Single credential revocations."},
	{ID: sessionguard.MetricRevokeAll, Name: "sessionguard_revoke_all_credentials_total", Help: "Credentials removed by revoke-all."},
	{ID: sessionguard.MetricNotificationSent, Name: "sessionguard_notification_sent_total", Help: "Notifications accepted by the mail transport."},
	{ID: sessionguard.MetricNotificationRateLimited, Name: "sessionguard_notification_rate_limited_total", Help: "Notifications rejected by the rate gate."},
	{ID: sessionguard.MetricNotificationCircuitOpen, Name: "sessionguard_notification_circuit_open_total", Help: "Notifications rejected by the open circuit."},
	{ID: sessionguard.MetricNotificationFailed, Name: "sessionguard_notification_failed_total", Help: "Notifications the transport failed to send."},
}

// HistogramDefs lists every exported engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: sessionguard.MetricValidateLatency, Name: "sessionguard_validate_latency_seconds", Help: "Access token validation latency."},
}

// Names of the series not backed by a MetricID.
const (
	AuditDroppedName   = "sessionguard_audit_dropped_total"
	AuditDroppedHelp   = "Audit events dropped due to dispatcher backpressure."
	BreakerStateName   = "sessionguard_dispatch_breaker_state"
	BreakerStateHelp   = "Notification circuit state: 0 closed, 1 open, 2 half-open."
	DispatchTokensName = "sessionguard_dispatch_tokens"
	DispatchTokensHelp = "Tokens left in the notification rate gate reservoir."
)

// HistogramBounds are the upper bounds of the latency buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as metric name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size bucket array, zero-filling
// missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// BreakerStateValue maps a breaker state to its gauge value.
func BreakerStateValue(s dispatch.State) int64 {
	switch s {
	case dispatch.StateOpen:
		return 1
	case dispatch.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
