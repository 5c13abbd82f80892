package flows

import (
	"context"

	"github.com/MrEthical07/sessionguard/credential"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Issue.Store != nil && s.deps.Validate.Store != nil
}

func (s Service) Issue(ctx context.Context, p Principal) (*Pair, error) {
	return IssuePair(ctx, p, s.deps.Issue)
}

func (s Service) Validate(ctx context.Context, token string, mode ValidateMode) ValidateResult {
	return RunValidate(ctx, token, mode, s.deps.Validate)
}

func (s Service) Rotate(ctx context.Context, secret string) RotateResult {
	return RunRotate(ctx, secret, s.deps.Rotate)
}

func (s Service) Logout(ctx context.Context, refreshSecret, accessToken string) LogoutResult {
	return RunLogout(ctx, refreshSecret, accessToken, s.deps.Logout)
}

func (s Service) RevokeOne(ctx context.Context, secret string, kind credential.Kind) RevokeResult {
	return RunRevokeOne(ctx, secret, kind, s.deps.Revoke)
}

func (s Service) RevokeAll(ctx context.Context, principalID string) RevokeResult {
	return RunRevokeAll(ctx, principalID, s.deps.Revoke)
}

func (s Service) IssueChallenge(ctx context.Context, p Principal) (string, error) {
	return IssueChallenge(ctx, p, s.deps.Challenge)
}

func (s Service) Redeem(ctx context.Context, secret, code string) RedeemResult {
	return RunRedeem(ctx, secret, code, s.deps.Redeem)
}

func (s Service) Login(ctx context.Context, identifier, password string) LoginResult {
	return RunLogin(ctx, identifier, password, s.deps.Login)
}
