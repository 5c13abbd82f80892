package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/sessionguard/credential"
	"github.com/MrEthical07/sessionguard/jwt"
)

// ValidateMode selects how much of the token the flow verifies itself.
type ValidateMode int

const (
	// ValidateDirect verifies signature and expiry before the store lookup.
	ValidateDirect ValidateMode = iota
	// ValidateTrusted skips signature verification; an upstream gateway has
	// already verified it. Expiry is still checked from the unverified claims.
	ValidateTrusted
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMissing
	ValidateFailureSignature
	ValidateFailureMalformed
	ValidateFailureExpired
	ValidateFailureNotFound
	ValidateFailureMismatch
	ValidateFailureCorrupt
	ValidateFailureUnavailable
	ValidateFailureInvalidMode
)

// Reason returns the log/audit label of a failure kind.
func (k ValidateFailureKind) Reason() string {
	switch k {
	case ValidateFailureNone:
		return ""
	case ValidateFailureMissing:
		return "missing"
	case ValidateFailureSignature:
		return "signature"
	case ValidateFailureMalformed:
		return "malformed"
	case ValidateFailureExpired:
		return "expired"
	case ValidateFailureNotFound:
		return "store_miss"
	case ValidateFailureMismatch:
		return "subject_mismatch"
	case ValidateFailureCorrupt:
		return "corrupt_record"
	case ValidateFailureUnavailable:
		return "store_unavailable"
	case ValidateFailureInvalidMode:
		return "invalid_mode"
	default:
		return "unknown"
	}
}

// ValidateResult returns either claims and the stored record or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Record  *credential.Record
}

// ValidateDeps captures direct/trusted validation dependencies.
type ValidateDeps struct {
	ParseAccess      func(string) (*jwt.AccessClaims, error)
	DecodeUnverified func(string) (*jwt.AccessClaims, error)
	Expired          func(*jwt.AccessClaims, time.Time) bool
	Now              func() time.Time
	Store            CredentialStore
}

// RunValidate executes access-token validation. The store lookup is mandatory in
// both modes and fails closed: any store error other than a miss is reported as
// ValidateFailureUnavailable, never as success.
func RunValidate(ctx context.Context, token string, mode ValidateMode, deps ValidateDeps) ValidateResult {
	if token == "" {
		return ValidateResult{Failure: ValidateFailureMissing}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	var (
		claims *jwt.AccessClaims
		err    error
	)
	switch mode {
	case ValidateDirect:
		claims, err = deps.ParseAccess(token)
		if err != nil {
			return ValidateResult{Failure: ValidateFailureSignature, Err: err}
		}
	case ValidateTrusted:
		claims, err = deps.DecodeUnverified(token)
		if err != nil {
			return ValidateResult{Failure: ValidateFailureMalformed, Err: err}
		}
		// Cheap fast path; the store TTL stays authoritative.
		if deps.Expired(claims, deps.Now()) {
			return ValidateResult{Failure: ValidateFailureExpired, Claims: claims}
		}
	default:
		return ValidateResult{Failure: ValidateFailureInvalidMode}
	}

	res, err := deps.Store.Resolve(ctx, credential.KindAccess, token)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound):
			return ValidateResult{Failure: ValidateFailureNotFound, Err: err, Claims: claims}
		case errors.Is(err, credential.ErrCorrupt):
			return ValidateResult{Failure: ValidateFailureCorrupt, Err: err, Claims: claims}
		default:
			return ValidateResult{Failure: ValidateFailureUnavailable, Err: err, Claims: claims}
		}
	}
	if res.Record.PrincipalID != claims.Subject {
		return ValidateResult{Failure: ValidateFailureMismatch, Claims: claims}
	}

	return ValidateResult{
		Claims: claims,
		Record: res.Record,
	}
}
