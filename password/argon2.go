package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// MinPasswordBytes is the shortest password Hash accepts.
	MinPasswordBytes = 10
	// DefaultMaxPasswordBytes caps password input when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024

	phcPrefix = "$argon2id$"

	floorMemoryKB    = 8 * 1024
	floorTime        = 1
	floorParallelism = 1
	floorSaltLength  = 16
	floorKeyLength   = 16
)

var (
	// ErrPasswordTooShort is returned by Hash for passwords under MinPasswordBytes.
	ErrPasswordTooShort = errors.New("password must be at least 10 bytes")
	// ErrPasswordTooLong is returned by Hash and Verify for input over the cap.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrInvalidHash is returned for stored hashes that are not Argon2id PHC strings.
	ErrInvalidHash = errors.New("invalid password hash")
)

var b64 = base64.RawStdEncoding

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig returns interactive-login parameters (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < floorMemoryKB:
		return fmt.Errorf("password memory must be >= %d KiB", floorMemoryKB)
	case c.Time < floorTime:
		return errors.New("password time must be >= 1")
	case c.Parallelism < floorParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < floorSaltLength:
		return fmt.Errorf("password salt length must be >= %d", floorSaltLength)
	case c.KeyLength < floorKeyLength:
		return fmt.Errorf("password key length must be >= %d", floorKeyLength)
	case c.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}

// Argon2 hashes and verifies passwords. It is immutable and safe for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns an [Argon2].
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns the PHC encoding of password under a fresh random salt.
// Passwords are hashed as raw bytes without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < MinPasswordBytes {
		return "", ErrPasswordTooShort
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
	}
	p.key = p.derive(password, a.config.KeyLength)
	return p.String(), nil
}

// Check verifies password against encodedHash and, on a match, reports whether
// the hash should be replaced because it was produced with weaker parameters
// than the current config. An error means encodedHash could not be parsed.
func (a *Argon2) Check(password, encodedHash string) (ok, rehash bool, err error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, false, ErrPasswordTooLong
	}
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, false, err
	}

	computed := p.derive(password, uint32(len(p.key)))
	if subtle.ConstantTimeCompare(computed, p.key) != 1 {
		return false, false, nil
	}
	return true, a.weakerThanConfig(p), nil
}

// Verify reports whether password matches encodedHash in constant time.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	ok, _, err := a.Check(password, encodedHash)
	return ok, err
}

// NeedsUpgrade reports whether encodedHash was produced with weaker cost
// parameters or a different key length than the current config.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return a.weakerThanConfig(p), nil
}

func (a *Argon2) weakerThanConfig(p *phc) bool {
	return p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.parallelism < a.config.Parallelism ||
		uint32(len(p.key)) != a.config.KeyLength
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p *phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

func (p *phc) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, p.memory, p.time, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func parsePHC(encoded string) (*phc, error) {
	fail := func(reason string) (*phc, error) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHash, reason)
	}

	rest, found := strings.CutPrefix(encoded, phcPrefix)
	if !found {
		return fail("not an argon2id PHC string")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return fail("wrong number of fields")
	}

	if fields[0] != fmt.Sprintf("v=%d", argon2.Version) {
		return fail("unsupported argon2 version")
	}

	var (
		p           phc
		parallelism uint32
	)
	if n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &parallelism); err != nil || n != 3 {
		return fail("malformed parameters")
	}
	if fields[1] != fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, parallelism) {
		return fail("malformed parameters")
	}
	if p.memory < floorMemoryKB || p.time < floorTime || parallelism < floorParallelism || parallelism > 255 {
		return fail("parameters out of range")
	}
	p.parallelism = uint8(parallelism)

	var err error
	if p.salt, err = decodeB64(fields[2]); err != nil || len(p.salt) < floorSaltLength {
		return fail("bad salt")
	}
	if p.key, err = decodeB64(fields[3]); err != nil || len(p.key) == 0 {
		return fail("bad key")
	}
	return &p, nil
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return b64.DecodeString(strings.TrimRight(s, "="))
}
