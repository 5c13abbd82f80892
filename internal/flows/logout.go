package flows

import (
	"context"

	"github.com/MrEthical07/sessionguard/credential"
)

// LogoutFailureKind classifies logout failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureMissing
	LogoutFailureNotFound
	LogoutFailureUnavailable
)

// LogoutResult reports the mandatory renewal revocation and the best-effort
// access revocation separately.
type LogoutResult struct {
	Failure       LogoutFailureKind
	Err           error
	AccessRevoked bool
	AccessErr     error
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Store CredentialStore
	Warn  func(string, ...any)
}

// RunLogout revokes the renewal credential (mandatory) and then the access
// credential (best-effort). The access revocation is attempted even when the
// renewal secret is unknown.
func RunLogout(ctx context.Context, refreshSecret, accessToken string, deps LogoutDeps) LogoutResult {
	warn := warnOrNoop(deps.Warn)
	var result LogoutResult

	if refreshSecret == "" {
		result.Failure = LogoutFailureMissing
	} else {
		revoked, err := deps.Store.RevokeOne(ctx, credential.KindRefresh, refreshSecret)
		switch {
		case err != nil:
			result.Failure = LogoutFailureUnavailable
			result.Err = err
		case !revoked:
			result.Failure = LogoutFailureNotFound
		}
	}

	if accessToken != "" {
		revoked, err := deps.Store.RevokeOne(ctx, credential.KindAccess, accessToken)
		if err != nil {
			warn("sessionguard: best-effort access revoke failed", "error", err)
			result.AccessErr = err
		}
		result.AccessRevoked = revoked
	}
	return result
}
