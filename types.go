package sessionguard

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/sessionguard/credential"
	internalaudit "github.com/MrEthical07/sessionguard/internal/audit"
	internalmetrics "github.com/MrEthical07/sessionguard/internal/metrics"
)

// Principal is the authenticated subject of a credential.
type Principal struct {
	ID          string
	DisplayName string
	Email       string
	TenantID    string
	Roles       []string
	MFAEnabled  bool
}

// AccountProvider is the external account store. FindPrincipal* return
// [ErrPrincipalNotFound] for unknown principals; any other error is treated as a
// dependency failure.
type AccountProvider interface {
	FindPrincipalByIdentifier(ctx context.Context, identifier string) (Principal, error)
	FindPrincipalByID(ctx context.Context, id string) (Principal, error)
	VerifyPassword(ctx context.Context, p Principal, candidate string) (bool, error)
}

// CodeVerifier checks a second-factor code for a principal.
type CodeVerifier interface {
	VerifyCode(ctx context.Context, principalID, code string) (bool, error)
}

// CredentialKind distinguishes access and refresh credentials.
type CredentialKind = credential.Kind

const (
	// KindAccess selects access credentials.
	KindAccess = credential.KindAccess
	// KindRefresh selects refresh credentials.
	KindRefresh = credential.KindRefresh
)

// TokenPair is a freshly issued credential pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResult is returned by [Engine.Login]. Exactly one of Tokens and
// ChallengeToken is set.
type LoginResult struct {
	Principal      Principal
	Tokens         *TokenPair
	MFARequired    bool
	ChallengeToken string
}

// AuthResult describes a validated access credential. Fields from the stored
// record take precedence over claims carried in the token.
type AuthResult struct {
	PrincipalID  string    `json:"id"`
	DisplayName  string    `json:"name,omitempty"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Roles        []string  `json:"roles,omitempty"`
	CredentialID string    `json:"-"`
	TokenID      string    `json:"-"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenView is the caller-facing answer to "is this token valid?".
type TokenView struct {
	Valid     bool        `json:"valid"`
	Principal *AuthResult `json:"user,omitempty"`
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that logs events through a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]; a nil logger means [slog.Default].
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess            = internalmetrics.MetricLoginSuccess
	MetricLoginFailure            = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited        = internalmetrics.MetricLoginRateLimited
	MetricMFARequired             = internalmetrics.MetricMFARequired
	MetricMFASuccess              = internalmetrics.MetricMFASuccess
	MetricMFAFailure              = internalmetrics.MetricMFAFailure
	MetricCredentialsIssued       = internalmetrics.MetricCredentialsIssued
	MetricRefreshSuccess          = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure          = internalmetrics.MetricRefreshFailure
	MetricRefreshGraceReuse       = internalmetrics.MetricRefreshGraceReuse
	MetricRefreshReuseDetected    = internalmetrics.MetricRefreshReuseDetected
	MetricDemoteFailure           = internalmetrics.MetricDemoteFailure
	MetricValidateSuccess         = internalmetrics.MetricValidateSuccess
	MetricValidateFailure         = internalmetrics.MetricValidateFailure
	MetricValidateUnavailable     = internalmetrics.MetricValidateUnavailable
	MetricLogout                  = internalmetrics.MetricLogout
	MetricRevokeOne               = internalmetrics.MetricRevokeOne
	MetricRevokeAll               = internalmetrics.MetricRevokeAll
	MetricNotificationSent        = internalmetrics.MetricNotificationSent
	MetricNotificationRateLimited = internalmetrics.MetricNotificationRateLimited
	MetricNotificationCircuitOpen = internalmetrics.MetricNotificationCircuitOpen
	MetricNotificationFailed      = internalmetrics.MetricNotificationFailed
	MetricValidateLatency         = internalmetrics.MetricValidateLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by cfg. When Enabled is
// false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
