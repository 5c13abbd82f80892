package sessionguard

import (
	"context"
	"fmt"

	"github.com/MrEthical07/sessionguard/internal/flows"
)

// IssueChallenge stores a one-time second-factor challenge for p and returns its
// secret. [Engine.Login] calls it for principals with MFAEnabled.
func (e *Engine) IssueChallenge(ctx context.Context, p Principal) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", ErrPrincipalNotFound
	}
	secret, err := e.flows.IssueChallenge(ctx, toFlowPrincipal(p))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	e.metricInc(MetricMFARequired)
	e.emitAudit(ctx, auditEventMFARequired, true, p.ID, p.TenantID, "", nil, nil)
	return secret, nil
}

// RedeemChallenge exchanges a challenge secret and a second-factor code for a
// token pair. The challenge is consumed before the code is checked, so each
// challenge can be attempted once whatever the outcome. Unknown, consumed,
// expired and rejected challenges all return ErrChallengeInvalid.
func (e *Engine) RedeemChallenge(ctx context.Context, challenge, code string) (_ *TokenPair, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ctx, span := e.startSpan(ctx, spanRedeemChallenge)
	defer func() { endSpan(span, err) }()

	res := e.flows.Redeem(ctx, challenge, code)
	p := fromFlowPrincipal(res.Principal)

	switch res.Failure {
	case flows.RedeemFailureNone:
	case flows.RedeemFailureMissing, flows.RedeemFailureNotFound, flows.RedeemFailureCodeRejected:
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, p.ID, p.TenantID, "", ErrChallengeInvalid, nil)
		return nil, ErrChallengeInvalid
	case flows.RedeemFailureVerifier:
		e.metricInc(MetricMFAFailure)
		e.logger.Warn("sessionguard: code verifier failed", "principal_id", p.ID, "error", res.Err)
		e.emitAudit(ctx, auditEventMFAFailure, false, p.ID, p.TenantID, "", ErrChallengeInvalid, reasonMeta("verifier_error"))
		return nil, ErrChallengeInvalid
	default:
		err := fmt.Errorf("%w: %v", ErrDependencyUnavailable, res.Err)
		e.metricInc(MetricMFAFailure)
		e.logger.Error("sessionguard: challenge redemption failed", "principal_id", p.ID, "error", res.Err)
		e.emitAudit(ctx, auditEventMFAFailure, false, p.ID, p.TenantID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricMFASuccess)
	e.metricInc(MetricCredentialsIssued)
	e.emitAudit(ctx, auditEventMFASuccess, true, p.ID, p.TenantID, res.Pair.RefreshID, nil, nil)
	return toTokenPair(res.Pair), nil
}
