package sessionguard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every tunable of an [Engine].
//
// Config instances are intended to be configured during initialization and then
// treated as immutable. [Builder.WithConfig] stores a deep copy.
type Config struct {
	JWT           JWTConfig           `yaml:"jwt"`
	Rotation      RotationConfig      `yaml:"rotation"`
	Challenge     ChallengeConfig     `yaml:"challenge"`
	Store         StoreConfig         `yaml:"store"`
	Security      SecurityConfig      `yaml:"security"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	Notification  NotificationConfig  `yaml:"notification"`
	PasswordReset PasswordResetConfig `yaml:"password_reset"`
	Validation    ValidationConfig    `yaml:"validation"`
	Audit         AuditConfig         `yaml:"audit"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access token signing. Keys are raw bytes or PEM; the
// *File fields are resolved by [LoadConfigFile].
type JWTConfig struct {
	AccessTTL      time.Duration `yaml:"access_ttl"`
	SigningMethod  string        `yaml:"signing_method"` // "ed25519" (default), "hs256" optional
	PrivateKey     []byte        `yaml:"-"`
	PublicKey      []byte        `yaml:"-"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	Leeway         time.Duration `yaml:"leeway"`
	KeyID          string        `yaml:"key_id"`
}

/*
====================================
ROTATION CONFIG
====================================
*/

// RotationConfig controls refresh credential lifetime and the reuse window.
//
// GraceWindow is how long a rotated-away refresh credential keeps working. When
// RevokeAllOnReuse is set, presenting a rotated-away credential after its window
// revokes every credential of the principal.
type RotationConfig struct {
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	GraceWindow      time.Duration `yaml:"grace_window"`
	RevokeAllOnReuse bool          `yaml:"revoke_all_on_reuse"`
}

// ChallengeConfig controls second-factor challenge lifetime.
type ChallengeConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// StoreConfig controls the credential store client.
type StoreConfig struct {
	Prefix           string        `yaml:"prefix"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// SecurityConfig controls the per-identifier failed-login throttle.
type SecurityConfig struct {
	EnableLoginThrottle   bool          `yaml:"enable_login_throttle"`
	MaxLoginAttempts      int           `yaml:"max_login_attempts"`
	LoginCooldownDuration time.Duration `yaml:"login_cooldown"`
}

/*
====================================
DISPATCH CONFIG
====================================
*/

// DispatchConfig controls the outbound notification rate gate and circuit
// breaker.
type DispatchConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenDuration     time.Duration `yaml:"open_duration"`
	ReservoirSize    int           `yaml:"reservoir_size"`
	RefillInterval   time.Duration `yaml:"refill_interval"`
	SendTimeout      time.Duration `yaml:"send_timeout"`
}

// NotificationConfig controls outbound mail composition.
type NotificationConfig struct {
	From    string `yaml:"from"`
	AppName string `yaml:"app_name"`
	BaseURL string `yaml:"base_url"`
}

// PasswordResetConfig controls password reset tickets.
type PasswordResetConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

/*
====================================
VALIDATION CONFIG
====================================
*/

// ValidationMode selects how [Engine.Validate] checks an access token.
type ValidationMode int

const (
	// ModeDirect verifies the token signature and expiry, then the store.
	ModeDirect ValidationMode = iota
	// ModeTrustedGateway skips signature verification because an upstream
	// gateway has already performed it. The store lookup still happens.
	ModeTrustedGateway
)

// String returns the configuration name of m.
func (m ValidationMode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeTrustedGateway:
		return "trusted_gateway"
	default:
		return fmt.Sprintf("ValidationMode(%d)", int(m))
	}
}

// ParseValidationMode parses "direct" or "trusted_gateway".
func ParseValidationMode(s string) (ValidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "direct":
		return ModeDirect, nil
	case "trusted_gateway", "trusted-gateway", "gateway":
		return ModeTrustedGateway, nil
	default:
		return ModeDirect, fmt.Errorf("%w: %q", ErrInvalidValidationMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m ValidationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ValidationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseValidationMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ValidationConfig controls the default validation mode and the gateway marker
// used by trusted-gateway routes.
type ValidationConfig struct {
	Mode          ValidationMode `yaml:"mode"`
	GatewayHeader string         `yaml:"gateway_header"`
	GatewaySecret string         `yaml:"gateway_secret"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. JWT keys must still be
// supplied before [Builder.Build].
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "sessionguard",
			Leeway:        30 * time.Second,
		},
		Rotation: RotationConfig{
			RefreshTTL:  7 * 24 * time.Hour,
			GraceWindow: 10 * time.Second,
		},
		Challenge: ChallengeConfig{
			TTL: 5 * time.Minute,
		},
		Store: StoreConfig{
			Prefix:           "",
			OperationTimeout: 2 * time.Second,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 10 * time.Minute,
		},
		Dispatch: DispatchConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenDuration:     30 * time.Second,
			ReservoirSize:    10,
			RefillInterval:   time.Second,
			SendTimeout:      10 * time.Second,
		},
		Notification: NotificationConfig{
			From:    "no-reply@localhost",
			AppName: "sessionguard",
			BaseURL: "http://localhost:8080",
		},
		PasswordReset: PasswordResetConfig{
			TTL: 30 * time.Minute,
		},
		Validation: ValidationConfig{
			Mode:          ModeDirect,
			GatewayHeader: "X-Gateway-Verified",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Rotation
	if c.Rotation.RefreshTTL <= 0 {
		return errors.New("Rotation RefreshTTL must be > 0")
	}
	if c.Rotation.GraceWindow <= 0 {
		return errors.New("Rotation GraceWindow must be > 0")
	}
	if c.Rotation.GraceWindow >= c.Rotation.RefreshTTL {
		return errors.New("Rotation GraceWindow must be shorter than RefreshTTL")
	}
	if c.Rotation.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Rotation RefreshTTL must exceed JWT AccessTTL")
	}

	// Challenge
	if c.Challenge.TTL <= 0 || c.Challenge.TTL > time.Hour {
		return errors.New("Challenge TTL must be between 0 and 1h")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0")
		}
	}

	// Dispatch
	if c.Dispatch.FailureThreshold <= 0 {
		return errors.New("Dispatch FailureThreshold must be > 0")
	}
	if c.Dispatch.SuccessThreshold <= 0 {
		return errors.New("Dispatch SuccessThreshold must be > 0")
	}
	if c.Dispatch.OpenDuration <= 0 {
		return errors.New("Dispatch OpenDuration must be > 0")
	}
	if c.Dispatch.ReservoirSize <= 0 {
		return errors.New("Dispatch ReservoirSize must be > 0")
	}
	if c.Dispatch.RefillInterval <= 0 {
		return errors.New("Dispatch RefillInterval must be > 0")
	}
	if c.Dispatch.SendTimeout < 0 {
		return errors.New("Dispatch SendTimeout must be >= 0")
	}

	// Password reset
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}

	// Validation
	switch c.Validation.Mode {
	case ModeDirect, ModeTrustedGateway:
	default:
		return ErrInvalidValidationMode
	}
	if c.Validation.GatewaySecret != "" && strings.TrimSpace(c.Validation.GatewayHeader) == "" {
		return errors.New("Validation GatewayHeader required when GatewaySecret is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
