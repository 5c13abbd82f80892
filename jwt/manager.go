package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the access-token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 using a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

const defaultMaxFutureIAT = 10 * time.Minute

var (
	errMissingKID  = errors.New("missing kid")
	errUnknownKID  = errors.New("unknown kid")
	errFutureIAT   = errors.New("token iat too far in the future")
	errVerifyOnly  = errors.New("manager has no signing key")
	errNoPrincipal = errors.New("empty principal id")
)

// Config controls signing keys and verification strictness.
//
// PrivateKey and PublicKey accept raw key bytes or PEM. For hs256 PrivateKey is
// the shared secret. VerifyKeys adds keys selected by the token's kid header;
// when it is set every token must carry a known kid.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Manager signs and verifies access tokens. Keys are decoded once at
// construction; the Manager is immutable and safe for concurrent use.
type Manager struct {
	config     Config
	method     jwt.SigningMethod
	signKey    any
	defaultKey any
	kidKeys    map[string]any
	parser     *jwt.Parser
	decoder    *jwt.Parser
}

// AccessClaims is the payload of an access token. Subject carries the principal id.
type AccessClaims struct {
	Name     string   `json:"name,omitempty"`
	TenantID string   `json:"tid,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Subject describes the principal an access token is minted for.
type Subject struct {
	PrincipalID string
	DisplayName string
	TenantID    string
	Roles       []string
}

// NewManager validates cfg, decodes its keys and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, kidKeys: make(map[string]any, len(cfg.VerifyKeys))}
	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = append([]byte(nil), cfg.PrivateKey...)
		m.defaultKey = m.signKey
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			if m.signKey, err = parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if m.defaultKey, err = parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if m.defaultKey == nil && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	for kid, raw := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		key, err := m.verifyKeyFrom(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
		}
		m.kidKeys[kid] = key
	}
	if cfg.KeyID != "" && len(m.kidKeys) > 0 {
		if _, ok := m.kidKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	algs := []string{m.method.Alg()}
	options := []jwt.ParserOption{jwt.WithValidMethods(algs), jwt.WithTimeFunc(cfg.Now)}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(options...)
	m.decoder = jwt.NewParser(jwt.WithValidMethods(algs))

	return m, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// CreateAccess signs a new access token for sub and returns it with its claims.
// The token's jti is independent of any store identifier.
func (m *Manager) CreateAccess(sub Subject) (string, *AccessClaims, error) {
	if sub.PrincipalID == "" {
		return "", nil, errNoPrincipal
	}
	if m.signKey == nil {
		return "", nil, errVerifyOnly
	}

	now := m.config.Now()
	claims := &AccessClaims{
		Name:     sub.DisplayName,
		TenantID: sub.TenantID,
		Roles:    append([]string(nil), sub.Roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.PrincipalID,
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// DecodeUnverified decodes the payload without checking the signature. It still
// rejects tokens that are not structurally valid JWTs, use an unexpected
// algorithm, or carry no subject.
func (m *Manager) DecodeUnverified(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, _, err := m.decoder.ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, err
	}
	if token.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Expired reports whether claims carry an expiry that has passed, allowing for
// the configured leeway.
func (m *Manager) Expired(claims *AccessClaims, now time.Time) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return now.After(claims.ExpiresAt.Time.Add(m.config.Leeway))
}

// ParseAccess verifies signature, expiry, issuer, audience and key id, and
// returns the claims only when all checks pass.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	token, err := m.parser.ParseWithClaims(tokenStr, &AccessClaims{}, m.keyFor)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
		return nil, errFutureIAT
	}
	return claims, nil
}

// keyFor selects the verification key. With VerifyKeys the kid header picks
// the key; with only KeyID the header must match it; otherwise kid is ignored.
func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	switch {
	case len(m.kidKeys) > 0:
		if kid == "" {
			return nil, errMissingKID
		}
		key, ok := m.kidKeys[kid]
		if !ok {
			return nil, errUnknownKID
		}
		return key, nil
	case m.config.KeyID != "":
		if kid == "" {
			return nil, errMissingKID
		}
		if kid != m.config.KeyID {
			return nil, errUnknownKID
		}
	}
	if m.defaultKey == nil {
		return nil, errUnknownKID
	}
	return m.defaultKey, nil
}

func (m *Manager) verifyKeyFrom(raw []byte) (any, error) {
	if m.method == jwt.SigningMethodHS256 {
		if len(raw) == 0 {
			return nil, errors.New("empty hs256 key")
		}
		return append([]byte(nil), raw...), nil
	}
	return parseEdPublicKey(raw)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(append([]byte(nil), key...)), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(append([]byte(nil), key...)), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
