package accounts

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const totpSecretBytes = 20

var (
	// ErrTOTPNotEnrolled is returned by a [SecretSource] for principals without a
	// second factor.
	ErrTOTPNotEnrolled = errors.New("totp not enrolled")
	// ErrUnsupportedAlgorithm is returned for HMAC algorithms other than SHA1,
	// SHA256 and SHA512.
	ErrUnsupportedAlgorithm = errors.New("unsupported totp algorithm")
)

// SecretSource resolves the shared TOTP secret of a principal.
type SecretSource interface {
	TOTPSecret(ctx context.Context, principalID string) ([]byte, error)
}

// TOTPConfig configures RFC 6238 code generation.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	// Skew is the number of adjacent periods accepted on either side of now.
	Skew int
}

// DefaultTOTPConfig returns 6 digit SHA1 codes over 30 second periods with one
// period of skew.
func DefaultTOTPConfig() TOTPConfig {
	return TOTPConfig{
		Issuer:    "sessionguard",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	}
}

// TOTP verifies time-based one-time codes. A code is accepted at most once per
// principal: a counter at or below the last accepted one is rejected.
type TOTP struct {
	config  TOTPConfig
	secrets SecretSource
	now     func() time.Time

	mu   sync.Mutex
	last map[string]int64
}

// NewTOTP validates cfg and returns a verifier reading secrets from secrets.
func NewTOTP(cfg TOTPConfig, secrets SecretSource) (*TOTP, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}
	if cfg.Digits < 6 || cfg.Digits > 8 {
		return nil, errors.New("totp digits must be between 6 and 8")
	}
	if cfg.Period <= 0 {
		return nil, errors.New("totp period must be positive")
	}
	if cfg.Skew < 0 || cfg.Skew > 3 {
		return nil, errors.New("totp skew must be between 0 and 3")
	}
	if secrets == nil {
		return nil, errors.New("totp secret source is nil")
	}
	return &TOTP{
		config:  cfg,
		secrets: secrets,
		now:     time.Now,
		last:    make(map[string]int64),
	}, nil
}

// GenerateSecret returns a fresh random secret and its unpadded base32 form.
func (t *TOTP) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI authenticator apps scan.
func (t *TOTP) ProvisionURI(secretBase32, account string) string {
	issuer := t.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(t.config.Period))
	v.Set("digits", strconv.Itoa(t.config.Digits))
	v.Set("algorithm", strings.ToUpper(t.config.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Code returns the code for secret at instant at.
func (t *TOTP) Code(secret []byte, at time.Time) (string, error) {
	return hotpCode(secret, at.Unix()/int64(t.config.Period), t.config.Digits, t.config.Algorithm)
}

// VerifyCode implements sessionguard.CodeVerifier. Malformed codes and
// principals without a secret yield false without an error.
func (t *TOTP) VerifyCode(ctx context.Context, principalID, code string) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != t.config.Digits || !isNumeric(trimmed) {
		return false, nil
	}

	secret, err := t.secrets.TOTPSecret(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrTOTPNotEnrolled) {
			return false, nil
		}
		return false, err
	}

	counter, ok, err := t.match(secret, trimmed, t.now())
	if err != nil || !ok {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, seen := t.last[principalID]; seen && counter <= prev {
		return false, nil
	}
	t.last[principalID] = counter
	return true, nil
}

func (t *TOTP) match(secret []byte, code string, now time.Time) (int64, bool, error) {
	if len(secret) == 0 {
		return 0, false, errors.New("empty totp secret")
	}

	base := now.Unix() / int64(t.config.Period)
	for step := -t.config.Skew; step <= t.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, t.config.Digits, t.config.Algorithm)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(code)) == 1 {
			return counter, true, nil
		}
	}
	return 0, false, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
