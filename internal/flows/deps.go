package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionguard/credential"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Issue     IssueDeps
	Validate  ValidateDeps
	Rotate    RotateDeps
	Logout    LogoutDeps
	Revoke    RevokeDeps
	Challenge ChallengeDeps
	Redeem    RedeemDeps
	Login     LoginDeps
}

// Principal is the flow-local principal snapshot used for issuance.
type Principal struct {
	ID          string
	DisplayName string
	Email       string
	TenantID    string
	Roles       []string
	MFAEnabled  bool
}

// CredentialStore is the subset of [credential.Store] the flows use.
type CredentialStore interface {
	Put(ctx context.Context, rec *credential.Record, secret string, ttl time.Duration) error
	Resolve(ctx context.Context, kind credential.Kind, secret string) (*credential.Resolved, error)
	Demote(ctx context.Context, res *credential.Resolved, grace time.Duration) error
	ConsumedBy(ctx context.Context, secret string) (string, bool, error)
	RevokeOne(ctx context.Context, kind credential.Kind, secret string) (bool, error)
	RevokeAll(ctx context.Context, principalID string) (int, error)
	PutChallenge(ctx context.Context, secret string, c *credential.Challenge, ttl time.Duration) error
	TakeChallenge(ctx context.Context, secret string) (*credential.Challenge, error)
}

func warnOrNoop(warn func(string, ...any)) func(string, ...any) {
	if warn == nil {
		return func(string, ...any) {}
	}
	return warn
}
