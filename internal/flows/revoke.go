package flows

import (
	"context"

	"github.com/MrEthical07/sessionguard/credential"
)

// RevokeFailureKind classifies revocation failures for root-level mapping.
type RevokeFailureKind int

const (
	RevokeFailureNone RevokeFailureKind = iota
	RevokeFailureMissing
	RevokeFailureInvalidKind
	RevokeFailureUnavailable
)

// RevokeResult reports how many credentials a revocation removed.
type RevokeResult struct {
	Failure RevokeFailureKind
	Err     error
	Revoked int
}

// RevokeDeps captures revocation dependencies.
type RevokeDeps struct {
	Store CredentialStore
}

// RunRevokeOne revokes the credential of kind identified by secret. Revoked is 0
// for unknown secrets and kind mismatches, so repeating the call is harmless.
func RunRevokeOne(ctx context.Context, secret string, kind credential.Kind, deps RevokeDeps) RevokeResult {
	if secret == "" {
		return RevokeResult{Failure: RevokeFailureMissing}
	}
	if !kind.Valid() {
		return RevokeResult{Failure: RevokeFailureInvalidKind}
	}
	ok, err := deps.Store.RevokeOne(ctx, kind, secret)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureUnavailable, Err: err}
	}
	if ok {
		return RevokeResult{Revoked: 1}
	}
	return RevokeResult{}
}

// RunRevokeAll revokes every indexed credential of principalID. A partial
// failure reports the count removed before the error.
func RunRevokeAll(ctx context.Context, principalID string, deps RevokeDeps) RevokeResult {
	if principalID == "" {
		return RevokeResult{Failure: RevokeFailureMissing}
	}
	n, err := deps.Store.RevokeAll(ctx, principalID)
	if err != nil {
		return RevokeResult{Failure: RevokeFailureUnavailable, Err: err, Revoked: n}
	}
	return RevokeResult{Revoked: n}
}
