package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/sessionguard/credential"
)

// ChallengeDeps captures challenge issuance dependencies.
type ChallengeDeps struct {
	Store     CredentialStore
	NewSecret func() (string, error)
	TTL       time.Duration
	Now       func() time.Time
}

// IssueChallenge stores a principal snapshot under a new one-time secret.
func IssueChallenge(ctx context.Context, p Principal, deps ChallengeDeps) (string, error) {
	if deps.Store == nil || deps.NewSecret == nil {
		return "", errors.New("challenge flow not wired")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	secret, err := deps.NewSecret()
	if err != nil {
		return "", err
	}

	now := deps.Now()
	c := &credential.Challenge{
		PrincipalID: p.ID,
		DisplayName: p.DisplayName,
		TenantID:    p.TenantID,
		Email:       p.Email,
		Roles:       append([]string(nil), p.Roles...),
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(deps.TTL).Unix(),
	}
	if err := deps.Store.PutChallenge(ctx, secret, c, deps.TTL); err != nil {
		return "", err
	}
	return secret, nil
}

// RedeemFailureKind classifies challenge redemption failures.
type RedeemFailureKind int

const (
	RedeemFailureNone RedeemFailureKind = iota
	RedeemFailureMissing
	RedeemFailureNotFound
	RedeemFailureCodeRejected
	RedeemFailureVerifier
	RedeemFailureUnavailable
	RedeemFailureIssue
)

// RedeemResult carries either the new pair or failure metadata.
type RedeemResult struct {
	Failure   RedeemFailureKind
	Err       error
	Principal Principal
	Pair      *Pair
}

// RedeemDeps captures challenge redemption dependencies.
type RedeemDeps struct {
	Store      CredentialStore
	VerifyCode func(ctx context.Context, principalID, code string) (bool, error)
	Issue      func(ctx context.Context, p Principal) (*Pair, error)
}

// RunRedeem consumes the challenge first and verifies the code second, so a
// challenge can be attempted exactly once whatever the outcome.
func RunRedeem(ctx context.Context, secret, code string, deps RedeemDeps) RedeemResult {
	if secret == "" || code == "" {
		return RedeemResult{Failure: RedeemFailureMissing}
	}

	c, err := deps.Store.TakeChallenge(ctx, secret)
	if err != nil {
		if errors.Is(err, credential.ErrChallengeNotFound) || errors.Is(err, credential.ErrCorrupt) {
			return RedeemResult{Failure: RedeemFailureNotFound, Err: err}
		}
		return RedeemResult{Failure: RedeemFailureUnavailable, Err: err}
	}

	p := Principal{
		ID:          c.PrincipalID,
		DisplayName: c.DisplayName,
		Email:       c.Email,
		TenantID:    c.TenantID,
		Roles:       c.Roles,
		MFAEnabled:  true,
	}

	ok, err := deps.VerifyCode(ctx, p.ID, code)
	if err != nil {
		return RedeemResult{Failure: RedeemFailureVerifier, Err: err, Principal: p}
	}
	if !ok {
		return RedeemResult{Failure: RedeemFailureCodeRejected, Principal: p}
	}

	pair, err := deps.Issue(ctx, p)
	if err != nil {
		return RedeemResult{Failure: RedeemFailureIssue, Err: err, Principal: p}
	}
	return RedeemResult{Principal: p, Pair: pair}
}
