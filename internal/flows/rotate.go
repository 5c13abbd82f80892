package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/sessionguard/credential"
	"github.com/MrEthical07/sessionguard/store"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureMissing
	RotateFailureNotFound
	RotateFailureReuse
	RotateFailureCorrupt
	RotateFailurePrincipalGone
	RotateFailureUnavailable
	RotateFailureIssue
)

// RotateResult carries either the new pair or failure metadata.
type RotateResult struct {
	Failure      RotateFailureKind
	Err          error
	PrincipalID  string
	CredentialID string
	// Grace is true when the presented credential had already been rotated and
	// was honored inside its grace window.
	Grace bool
	// DemoteErr is set when demotion of an ACTIVE credential failed; rotation
	// proceeds regardless.
	DemoteErr error
	// Revoked is the number of credentials mass-revoked after a detected reuse.
	Revoked   int
	Principal Principal
	Pair      *Pair
}

// RotateDeps captures rotation dependencies.
type RotateDeps struct {
	Store            CredentialStore
	GraceWindow      time.Duration
	RevokeAllOnReuse bool
	FindPrincipal    func(ctx context.Context, id string) (Principal, bool, error)
	Issue            func(ctx context.Context, p Principal) (*Pair, error)
	Warn             func(string, ...any)
}

// RunRotate exchanges a renewal secret for a brand-new pair.
//
// A credential with more than GraceWindow left is ACTIVE: it is demoted to the
// grace TTL before the new pair is issued. A credential already inside the
// window is honored without touching its TTL, so concurrent callers presenting
// the same secret all succeed until the window closes and each gets its own
// new pair. Once the window closes the secret is GONE.
func RunRotate(ctx context.Context, secret string, deps RotateDeps) RotateResult {
	warn := warnOrNoop(deps.Warn)
	if secret == "" {
		return RotateResult{Failure: RotateFailureMissing}
	}

	res, err := deps.Store.Resolve(ctx, credential.KindRefresh, secret)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound):
			return classifyGone(ctx, secret, deps, warn)
		case errors.Is(err, credential.ErrCorrupt):
			return RotateResult{Failure: RotateFailureCorrupt, Err: err}
		default:
			return RotateResult{Failure: RotateFailureUnavailable, Err: err}
		}
	}

	result := RotateResult{
		PrincipalID:  res.Record.PrincipalID,
		CredentialID: res.Record.ID,
	}
	if res.Remaining == store.NoExpiry || res.Remaining > deps.GraceWindow {
		if err := deps.Store.Demote(ctx, res, deps.GraceWindow); err != nil {
			warn("sessionguard: demote rotated credential failed", "credential_id", res.Record.ID, "error", err)
			result.DemoteErr = err
		}
	} else {
		result.Grace = true
	}

	p, found, err := deps.FindPrincipal(ctx, res.Record.PrincipalID)
	if err != nil {
		result.Failure = RotateFailureUnavailable
		result.Err = err
		return result
	}
	if !found {
		result.Failure = RotateFailurePrincipalGone
		return result
	}
	result.Principal = p

	pair, err := deps.Issue(ctx, p)
	if err != nil {
		result.Failure = RotateFailureIssue
		result.Err = err
		return result
	}
	result.Pair = pair
	return result
}

func classifyGone(ctx context.Context, secret string, deps RotateDeps, warn func(string, ...any)) RotateResult {
	principalID, consumed, err := deps.Store.ConsumedBy(ctx, secret)
	if err != nil {
		warn("sessionguard: reuse tombstone lookup failed", "error", err)
		return RotateResult{Failure: RotateFailureNotFound, Err: credential.ErrNotFound}
	}
	if !consumed {
		return RotateResult{Failure: RotateFailureNotFound, Err: credential.ErrNotFound}
	}

	result := RotateResult{Failure: RotateFailureReuse, PrincipalID: principalID}
	if deps.RevokeAllOnReuse && principalID != "" {
		n, err := deps.Store.RevokeAll(ctx, principalID)
		if err != nil {
			warn("sessionguard: revoke-all after reuse failed", "principal_id", principalID, "error", err)
		}
		result.Revoked = n
	}
	return result
}
