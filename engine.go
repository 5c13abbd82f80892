package sessionguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/sessionguard/credential"
	"github.com/MrEthical07/sessionguard/dispatch"
	internalaudit "github.com/MrEthical07/sessionguard/internal/audit"
	"github.com/MrEthical07/sessionguard/internal/flows"
	"github.com/MrEthical07/sessionguard/internal/rate"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/store"
	"go.opentelemetry.io/otel/trace"
)

// Engine issues, validates, rotates and revokes credentials.
//
// Engine instances are built once through [Builder.Build] and are safe for
// concurrent use afterwards.
type Engine struct {
	config     Config
	flows      flows.Service
	kv         store.Client
	creds      *credential.Store
	jwt        *jwt.Manager
	limiter    *rate.Limiter
	accounts   AccountProvider
	verifier   CodeVerifier
	dispatcher *dispatch.Dispatcher
	composer   *Composer
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func (e *Engine) ready() error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return nil
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// DispatchSnapshot returns the notification breaker and rate gate state. ok is
// false when no mail transport was configured.
func (e *Engine) DispatchSnapshot() (snap dispatch.Snapshot, ok bool) {
	if e == nil || e.dispatcher == nil {
		return dispatch.Snapshot{}, false
	}
	return e.dispatcher.Snapshot(), true
}

// ResetDispatch closes the notification breaker and refills the rate gate.
func (e *Engine) ResetDispatch() {
	if e == nil || e.dispatcher == nil {
		return
	}
	e.dispatcher.Reset()
}

// Ping checks that the credential store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.kv.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	return nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

/*
====================================
LOGIN AND ISSUANCE
====================================
*/

// Login authenticates identifier/password. Principals with a second factor get
// a challenge (LoginResult.MFARequired) instead of tokens; redeem it with
// [Engine.RedeemChallenge].
//
// Every credential failure returns ErrInvalidCredentials regardless of whether
// the identifier exists. Once an identifier has spent its failed-login budget
// the call returns ErrLoginRateLimited.
func (e *Engine) Login(ctx context.Context, identifier, password string) (_ *LoginResult, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ctx, span := e.startSpan(ctx, spanLogin)
	defer func() { endSpan(span, err) }()

	res := e.flows.Login(ctx, identifier, password)
	p := fromFlowPrincipal(res.Principal)

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureRateLimited:
		if errors.Is(res.Err, rate.ErrRedisUnavailable) {
			err := fmt.Errorf("%w: %v", ErrDependencyUnavailable, res.Err)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, p.TenantID, "", err, nil)
			return nil, err
		}
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, p.ID, p.TenantID, "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return nil, ErrLoginRateLimited
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, p.TenantID, "", ErrInvalidCredentials, reasonMeta(res.Reason))
		return nil, ErrInvalidCredentials
	default:
		err := fmt.Errorf("%w: %v", ErrDependencyUnavailable, res.Err)
		e.logger.Error("sessionguard: login failed", "principal_id", p.ID, "error", res.Err)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, p.TenantID, "", err, nil)
		return nil, err
	}

	if res.MFARequired {
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, true, p.ID, p.TenantID, "", nil, nil)
		return &LoginResult{
			Principal:      p,
			MFARequired:    true,
			ChallengeToken: res.ChallengeToken,
		}, nil
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricCredentialsIssued)
	e.emitAudit(ctx, auditEventLoginSuccess, true, p.ID, p.TenantID, res.Pair.RefreshID, nil, nil)
	return &LoginResult{
		Principal: p,
		Tokens:    toTokenPair(res.Pair),
	}, nil
}

// IssueTokens issues a fresh access and refresh credential pair for p without
// any password check. Callers must have authenticated p themselves.
func (e *Engine) IssueTokens(ctx context.Context, p Principal) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, ErrPrincipalNotFound
	}
	pair, err := e.flows.Issue(ctx, toFlowPrincipal(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	e.metricInc(MetricCredentialsIssued)
	return toTokenPair(pair), nil
}

// Principal loads principal id from the account provider. Unknown principals
// return ErrPrincipalNotFound.
func (e *Engine) Principal(ctx context.Context, id string) (Principal, error) {
	if err := e.ready(); err != nil {
		return Principal{}, err
	}
	p, found, err := e.findByID(ctx, id)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	if !found {
		return Principal{}, ErrPrincipalNotFound
	}
	return fromFlowPrincipal(p), nil
}

func toTokenPair(p *flows.Pair) *TokenPair {
	if p == nil {
		return nil
	}
	return &TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks an access token in mode and returns the merged view of its
// claims and stored record, with the stored record taking precedence.
//
// Malformed, expired, revoked and unknown tokens all return ErrTokenInvalid;
// the distinction is only logged. A store failure returns
// ErrDependencyUnavailable and never a result.
func (e *Engine) Validate(ctx context.Context, token string, mode ValidationMode) (_ *AuthResult, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ctx, span := e.startSpan(ctx, spanValidate)
	defer func() { endSpan(span, err) }()

	var flowMode flows.ValidateMode
	switch mode {
	case ModeDirect:
		flowMode = flows.ValidateDirect
	case ModeTrustedGateway:
		flowMode = flows.ValidateTrusted
	default:
		return nil, ErrInvalidValidationMode
	}

	start := time.Now()
	res := e.flows.Validate(ctx, token, flowMode)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureMissing:
		e.metricInc(MetricValidateFailure)
		return nil, ErrMissingCredential
	case flows.ValidateFailureUnavailable:
		e.metricInc(MetricValidateUnavailable)
		e.logger.Warn("sessionguard: validation store unavailable", "mode", mode.String(), "error", res.Err)
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, res.Err)
	default:
		e.metricInc(MetricValidateFailure)
		e.logger.Debug("sessionguard: access token rejected", "mode", mode.String(), "reason", res.Failure.Reason(), "error", res.Err)
		return nil, ErrTokenInvalid
	}

	e.metricInc(MetricValidateSuccess)
	return mergeAuthResult(res.Claims, res.Record), nil
}

// ValidateAccess validates token in the configured default mode.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.Validate(ctx, token, e.config.Validation.Mode)
}

// ValidateToken answers "is this token valid?" for client introspection.
// Credential judgments never produce an error; only infrastructure failures do.
func (e *Engine) ValidateToken(ctx context.Context, token string) (*TokenView, error) {
	result, err := e.ValidateAccess(ctx, token)
	switch {
	case err == nil:
		return &TokenView{Valid: true, Principal: result}, nil
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrMissingCredential):
		return &TokenView{Valid: false}, nil
	default:
		return nil, err
	}
}

func mergeAuthResult(claims *jwt.AccessClaims, rec *credential.Record) *AuthResult {
	out := &AuthResult{}
	if claims != nil {
		out.PrincipalID = claims.Subject
		out.DisplayName = claims.Name
		out.TenantID = claims.TenantID
		out.Roles = append([]string(nil), claims.Roles...)
		out.TokenID = claims.ID
		if claims.IssuedAt != nil {
			out.IssuedAt = claims.IssuedAt.Time
		}
		if claims.ExpiresAt != nil {
			out.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if rec == nil {
		return out
	}

	out.PrincipalID = rec.PrincipalID
	out.CredentialID = rec.ID
	if rec.DisplayName != "" {
		out.DisplayName = rec.DisplayName
	}
	if rec.TenantID != "" {
		out.TenantID = rec.TenantID
	}
	if len(rec.Roles) > 0 {
		out.Roles = append([]string(nil), rec.Roles...)
	}
	if rec.IssuedAt > 0 {
		out.IssuedAt = time.Unix(rec.IssuedAt, 0)
	}
	if rec.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(rec.ExpiresAt, 0)
	}
	return out
}

/*
====================================
ROTATION
====================================
*/

// Refresh exchanges a refresh token for a brand-new pair.
//
// A refresh token can be presented again within the rotation grace window and
// each presentation yields a distinct new pair. After the window it is invalid.
// Every validity failure returns ErrRefreshInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (_ *TokenPair, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ctx, span := e.startSpan(ctx, spanRefresh)
	defer func() { endSpan(span, err) }()

	res := e.flows.Rotate(ctx, refreshToken)
	if res.DemoteErr != nil {
		e.metricInc(MetricDemoteFailure)
	}

	switch res.Failure {
	case flows.RotateFailureNone:
	case flows.RotateFailureMissing:
		e.metricInc(MetricRefreshFailure)
		return nil, ErrMissingCredential
	case flows.RotateFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.Warn("sessionguard: rotated refresh token presented after grace window",
			"principal_id", res.PrincipalID, "revoked", res.Revoked)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.PrincipalID, "", "", ErrRefreshReuse, func() map[string]string {
			return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
		})
		return nil, ErrRefreshInvalid
	case flows.RotateFailureNotFound, flows.RotateFailureCorrupt, flows.RotateFailurePrincipalGone:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.PrincipalID, "", res.CredentialID, ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	default:
		err := fmt.Errorf("%w: %v", ErrDependencyUnavailable, res.Err)
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("sessionguard: refresh failed", "principal_id", res.PrincipalID, "error", res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.PrincipalID, "", res.CredentialID, err, nil)
		return nil, err
	}

	p := res.Principal
	if res.Grace {
		e.metricInc(MetricRefreshGraceReuse)
		e.logger.Info("sessionguard: refresh token honored inside grace window",
			"principal_id", p.ID, "credential_id", res.CredentialID)
		e.emitAudit(ctx, auditEventRefreshGraceReuse, true, p.ID, p.TenantID, res.CredentialID, nil, nil)
	}
	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricCredentialsIssued)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, p.ID, p.TenantID, res.Pair.RefreshID, nil, func() map[string]string {
		return map[string]string{"rotated_from": res.CredentialID}
	})
	return toTokenPair(res.Pair), nil
}

/*
====================================
REVOCATION
====================================
*/

// Logout revokes refreshToken and, best-effort, accessToken. An unknown refresh
// token returns ErrRefreshNotFound; the access token is still revoked.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessToken string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}

	ctx, span := e.startSpan(ctx, spanLogout)
	defer func() { endSpan(span, err) }()

	res := e.flows.Logout(ctx, refreshToken, accessToken)
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureMissing:
		err = ErrMissingCredential
	case flows.LogoutFailureNotFound:
		err = ErrRefreshNotFound
	default:
		err = fmt.Errorf("%w: %v", ErrDependencyUnavailable, res.Err)
	}

	if err == nil {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, auditEventLogout, err == nil, "", "", "", err, func() map[string]string {
		return map[string]string{"access_revoked": strconv.FormatBool(res.AccessRevoked)}
	})
	return err
}

// RevokeOne revokes a single credential of kind by its presented secret (the
// refresh token or the access token string). It reports false for unknown
// secrets and kind mismatches, so repeating a call is a harmless no-op.
func (e *Engine) RevokeOne(ctx context.Context, secret string, kind CredentialKind) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	res := e.flows.RevokeOne(ctx, secret, kind)
	switch res.Failure {
	case flows.RevokeFailureNone:
	case flows.RevokeFailureMissing:
		return false, ErrMissingCredential
	case flows.RevokeFailureInvalidKind:
		return false, fmt.Errorf("unknown credential kind %q", kind)
	default:
		return false, fmt.Errorf("%w: %v", ErrDependencyUnavailable, res.Err)
	}

	if res.Revoked > 0 {
		e.metricInc(MetricRevokeOne)
		e.emitAudit(ctx, auditEventRevokeOne, true, "", "", "", nil, func() map[string]string {
			return map[string]string{"kind": string(kind)}
		})
	}
	return res.Revoked > 0, nil
}

// RevokeAll revokes every credential of every kind issued to principalID and
// returns how many existed.
//
// A credential issued concurrently with this call may survive it. It stays
// bounded by its own lifetime and a repeated RevokeAll removes it.
func (e *Engine) RevokeAll(ctx context.Context, principalID string) (_ int, err error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	ctx, span := e.startSpan(ctx, spanRevokeAll)
	defer func() { endSpan(span, err) }()

	res := e.flows.RevokeAll(ctx, principalID)
	switch res.Failure {
	case flows.RevokeFailureNone:
	case flows.RevokeFailureMissing:
		return 0, ErrPrincipalNotFound
	default:
		err := fmt.Errorf("%w: %v", ErrDependencyUnavailable, res.Err)
		e.emitAudit(ctx, auditEventRevokeAll, false, principalID, "", "", err, nil)
		return res.Revoked, err
	}

	e.metrics.Add(MetricRevokeAll, uint64(res.Revoked))
	e.emitAudit(ctx, auditEventRevokeAll, true, principalID, "", "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
	})
	return res.Revoked, nil
}
