package flows

import (
	"context"
	"errors"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureUnavailable
	LoginFailureChallenge
	LoginFailureIssue
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Failure        LoginFailureKind
	Err            error
	Reason         string
	Principal      Principal
	MFARequired    bool
	ChallengeToken string
	Pair           *Pair
}

// LoginDeps captures login dependencies. The throttle funcs are optional.
type LoginDeps struct {
	CheckRate     func(ctx context.Context, identifier string) error
	RecordFailure func(ctx context.Context, identifier string) error
	ResetRate     func(ctx context.Context, identifier string) error

	FindPrincipal  func(ctx context.Context, identifier string) (Principal, bool, error)
	VerifyPassword func(ctx context.Context, p Principal, candidate string) (bool, error)
	IssueChallenge func(ctx context.Context, p Principal) (string, error)
	Issue          func(ctx context.Context, p Principal) (*Pair, error)
	Warn           func(string, ...any)
}

var errFlowNotWired = errors.New("login flow not wired")

// RunLogin authenticates identifier/password and either issues a pair or, for
// principals with a second factor, a challenge. Every credential failure is
// counted against the identifier's throttle window.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) LoginResult {
	warn := warnOrNoop(deps.Warn)
	if deps.FindPrincipal == nil || deps.VerifyPassword == nil || deps.Issue == nil {
		return LoginResult{Failure: LoginFailureUnavailable, Err: errFlowNotWired}
	}

	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, identifier); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	reject := func(reason string, p Principal) LoginResult {
		if deps.RecordFailure != nil {
			if err := deps.RecordFailure(ctx, identifier); err != nil {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err, Reason: reason, Principal: p}
			}
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, Reason: reason, Principal: p}
	}

	if identifier == "" || password == "" {
		return reject("empty_credentials", Principal{})
	}

	p, found, err := deps.FindPrincipal(ctx, identifier)
	if err != nil {
		return LoginResult{Failure: LoginFailureUnavailable, Err: err}
	}
	if !found {
		return reject("principal_not_found", Principal{})
	}

	ok, err := deps.VerifyPassword(ctx, p, password)
	if err != nil {
		return LoginResult{Failure: LoginFailureUnavailable, Err: err, Principal: p}
	}
	if !ok {
		return reject("password_mismatch", p)
	}
	password = ""

	if deps.ResetRate != nil {
		if err := deps.ResetRate(ctx, identifier); err != nil {
			warn("sessionguard: login throttle reset failed", "error", err)
		}
	}

	if p.MFAEnabled {
		if deps.IssueChallenge == nil {
			return LoginResult{Failure: LoginFailureChallenge, Err: errFlowNotWired, Principal: p}
		}
		challenge, err := deps.IssueChallenge(ctx, p)
		if err != nil {
			return LoginResult{Failure: LoginFailureChallenge, Err: err, Principal: p}
		}
		return LoginResult{Principal: p, MFARequired: true, ChallengeToken: challenge}
	}

	pair, err := deps.Issue(ctx, p)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Principal: p}
	}
	return LoginResult{Principal: p, Pair: pair}
}
