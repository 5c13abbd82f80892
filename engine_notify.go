package sessionguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionguard/credential"
	"github.com/MrEthical07/sessionguard/dispatch"
	"github.com/MrEthical07/sessionguard/internal"
)

// verificationTTL bounds email verification tickets.
const verificationTTL = 24 * time.Hour

// SendVerificationEmail mints a one-time email verification ticket for p and
// mails the confirmation link. Dispatch errors are returned wrapped in
// ErrNotificationRateLimited, ErrNotificationCircuitOpen or
// ErrNotificationFailed.
func (e *Engine) SendVerificationEmail(ctx context.Context, p Principal) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.dispatcher == nil {
		return ErrNotificationsDisabled
	}

	token, err := e.putTicket(ctx, p, verificationTTL, e.creds.PutVerificationTicket)
	if err != nil {
		return err
	}
	mail, err := e.composer.Verification(p, token, verificationTTL.String())
	if err != nil {
		return err
	}
	return e.deliver(ctx, p, "verification", mail)
}

// ConfirmEmailVerification consumes a verification ticket and returns the
// principal it was minted for. The account store marks the address verified.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, token string) (Principal, error) {
	if err := e.ready(); err != nil {
		return Principal{}, err
	}
	if token == "" {
		return Principal{}, ErrMissingCredential
	}
	c, err := e.creds.TakeVerificationTicket(ctx, token)
	if err != nil {
		return Principal{}, ticketError(err, ErrTokenInvalid)
	}
	return principalFromSnapshot(c), nil
}

// SendPasswordResetEmail mints a password reset ticket for p and mails the link.
func (e *Engine) SendPasswordResetEmail(ctx context.Context, p Principal) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.dispatcher == nil {
		return ErrNotificationsDisabled
	}

	ttl := e.config.PasswordReset.TTL
	token, err := e.putTicket(ctx, p, ttl, e.creds.PutResetTicket)
	if err != nil {
		return err
	}
	mail, err := e.composer.PasswordReset(p, token, ttl.String())
	if err != nil {
		return err
	}
	return e.deliver(ctx, p, "password_reset", mail)
}

// RequestPasswordReset looks up identifier and, when it names a principal,
// sends a password reset email. It returns nil for unknown identifiers and
// for dispatch failures so callers cannot learn whether an account exists.
// Only a nil or unbuilt engine returns an error.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if err := e.ready(); err != nil {
		return err
	}

	p, found, err := e.findByIdentifier(ctx, identifier)
	switch {
	case err != nil:
		e.logger.Warn("sessionguard: password reset lookup failed", "error", err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", "", ErrDependencyUnavailable, nil)
		return nil
	case !found:
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", "", ErrPrincipalNotFound, nil)
		return nil
	}

	principal := fromFlowPrincipal(p)
	if err := e.SendPasswordResetEmail(ctx, principal); err != nil {
		e.logger.Warn("sessionguard: password reset email not sent", "principal_id", principal.ID, "error", err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, principal.ID, principal.TenantID, "", err, nil)
		return nil
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, principal.ID, principal.TenantID, "", nil, nil)
	return nil
}

// ConsumePasswordReset redeems a password reset ticket once and revokes every
// credential of its principal. The caller then stores the new password in the
// account store.
func (e *Engine) ConsumePasswordReset(ctx context.Context, token string) (Principal, error) {
	if err := e.ready(); err != nil {
		return Principal{}, err
	}
	if token == "" {
		return Principal{}, ErrMissingCredential
	}

	c, err := e.creds.TakeResetTicket(ctx, token)
	if err != nil {
		err = ticketError(err, ErrPasswordResetInvalid)
		e.emitAudit(ctx, auditEventPasswordResetConsumed, false, "", "", "", err, nil)
		return Principal{}, err
	}
	p := principalFromSnapshot(c)
	if _, err := e.RevokeAll(ctx, p.ID); err != nil {
		return Principal{}, err
	}
	e.emitAudit(ctx, auditEventPasswordResetConsumed, true, p.ID, p.TenantID, "", nil, nil)
	return p, nil
}

// SendChangeConfirmation notifies p that change ("password", "email", ...) was
// applied to the account.
func (e *Engine) SendChangeConfirmation(ctx context.Context, p Principal, change string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.dispatcher == nil {
		return ErrNotificationsDisabled
	}
	mail, err := e.composer.ChangeConfirmation(p, change)
	if err != nil {
		return err
	}
	return e.deliver(ctx, p, "change_confirmation", mail)
}

func (e *Engine) putTicket(
	ctx context.Context,
	p Principal,
	ttl time.Duration,
	put func(context.Context, string, *credential.Challenge, time.Duration) error,
) (string, error) {
	if p.ID == "" || p.Email == "" {
		return "", ErrPrincipalNotFound
	}
	token, err := internal.NewSecret()
	if err != nil {
		return "", err
	}
	now := e.now()
	c := &credential.Challenge{
		PrincipalID: p.ID,
		DisplayName: p.DisplayName,
		TenantID:    p.TenantID,
		Email:       p.Email,
		Roles:       append([]string(nil), p.Roles...),
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(ttl).Unix(),
	}
	if err := put(ctx, token, c, ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	return token, nil
}

func (e *Engine) deliver(ctx context.Context, p Principal, kind string, mail Mail) error {
	id, err := e.dispatcher.Send(ctx, dispatch.Message{
		From:    e.config.Notification.From,
		To:      p.Email,
		Subject: mail.Subject,
		HTML:    mail.HTML,
	})
	if err != nil {
		err = notificationError(err)
		switch {
		case errors.Is(err, ErrNotificationRateLimited):
			e.metricInc(MetricNotificationRateLimited)
		case errors.Is(err, ErrNotificationCircuitOpen):
			e.metricInc(MetricNotificationCircuitOpen)
		default:
			e.metricInc(MetricNotificationFailed)
		}
		e.logger.Warn("sessionguard: notification dispatch failed", "kind", kind, "principal_id", p.ID, "error", err)
		e.emitAudit(ctx, auditEventNotificationFailed, false, p.ID, p.TenantID, "", err, func() map[string]string {
			return map[string]string{"kind": kind}
		})
		return err
	}

	e.metricInc(MetricNotificationSent)
	e.emitAudit(ctx, auditEventNotificationSent, true, p.ID, p.TenantID, "", nil, func() map[string]string {
		return map[string]string{"kind": kind, "message_id": id}
	})
	return nil
}

func notificationError(err error) error {
	switch {
	case errors.Is(err, dispatch.ErrRateLimited):
		return fmt.Errorf("%w: %v", ErrNotificationRateLimited, err)
	case errors.Is(err, dispatch.ErrCircuitOpen):
		return fmt.Errorf("%w: %v", ErrNotificationCircuitOpen, err)
	default:
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
}

func ticketError(err, invalid error) error {
	if errors.Is(err, credential.ErrChallengeNotFound) || errors.Is(err, credential.ErrCorrupt) {
		return invalid
	}
	return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}

func principalFromSnapshot(c *credential.Challenge) Principal {
	return Principal{
		ID:          c.PrincipalID,
		DisplayName: c.DisplayName,
		Email:       c.Email,
		TenantID:    c.TenantID,
		Roles:       append([]string(nil), c.Roles...),
	}
}
