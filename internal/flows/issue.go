package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/sessionguard/credential"
	"github.com/MrEthical07/sessionguard/jwt"
)

// Pair is a freshly issued access + renewal credential pair.
type Pair struct {
	AccessToken      string
	AccessID         string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshID        string
	RefreshExpiresAt time.Time
}

// IssueDeps captures issuance dependencies.
type IssueDeps struct {
	Store        CredentialStore
	CreateAccess func(jwt.Subject) (string, *jwt.AccessClaims, error)
	NewSecret    func() (string, error)
	NewID        func() (string, error)
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Now          func() time.Time
}

// IssuePair signs a new access credential, mints a new renewal secret and
// persists both. The access token string itself is the secret mapped to the
// access record, so revoking the record revokes the token.
func IssuePair(ctx context.Context, p Principal, deps IssueDeps) (*Pair, error) {
	if deps.Store == nil || deps.CreateAccess == nil || deps.NewSecret == nil || deps.NewID == nil {
		return nil, errors.New("issue flow not wired")
	}
	if p.ID == "" {
		return nil, errors.New("principal id required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	now := deps.Now()

	accessToken, claims, err := deps.CreateAccess(jwt.Subject{
		PrincipalID: p.ID,
		DisplayName: p.DisplayName,
		TenantID:    p.TenantID,
		Roles:       p.Roles,
	})
	if err != nil {
		return nil, err
	}
	accessExpiry := now.Add(deps.AccessTTL)
	if claims != nil && claims.ExpiresAt != nil {
		accessExpiry = claims.ExpiresAt.Time
	}

	accessID, err := deps.NewID()
	if err != nil {
		return nil, err
	}
	if err := deps.Store.Put(ctx, newRecord(credential.KindAccess, accessID, p, now, accessExpiry), accessToken, deps.AccessTTL); err != nil {
		return nil, err
	}

	refreshSecret, err := deps.NewSecret()
	if err != nil {
		return nil, err
	}
	refreshID, err := deps.NewID()
	if err != nil {
		return nil, err
	}
	refreshExpiry := now.Add(deps.RefreshTTL)
	if err := deps.Store.Put(ctx, newRecord(credential.KindRefresh, refreshID, p, now, refreshExpiry), refreshSecret, deps.RefreshTTL); err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      accessToken,
		AccessID:         accessID,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refreshSecret,
		RefreshID:        refreshID,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func newRecord(kind credential.Kind, id string, p Principal, issued, expires time.Time) *credential.Record {
	return &credential.Record{
		ID:          id,
		Kind:        kind,
		PrincipalID: p.ID,
		DisplayName: p.DisplayName,
		TenantID:    p.TenantID,
		Roles:       append([]string(nil), p.Roles...),
		IssuedAt:    issued.Unix(),
		ExpiresAt:   expires.Unix(),
	}
}
