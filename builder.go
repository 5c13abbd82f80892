package sessionguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/sessionguard/credential"
	"github.com/MrEthical07/sessionguard/dispatch"
	"github.com/MrEthical07/sessionguard/internal"
	internalaudit "github.com/MrEthical07/sessionguard/internal/audit"
	"github.com/MrEthical07/sessionguard/internal/flows"
	"github.com/MrEthical07/sessionguard/internal/rate"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and
// then discarded. Build may be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountProvider
	verifier  CodeVerifier
	transport dispatch.Transport
	auditSink AuditSink
	logger    *slog.Logger
	tracer    trace.TracerProvider
	now       func() time.Time

	built bool
}

// New returns a [Builder] seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration with a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared credential store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountProvider sets the external account store. Required.
func (b *Builder) WithAccountProvider(p AccountProvider) *Builder {
	b.accounts = p
	return b
}

// WithCodeVerifier sets the second-factor verifier. Without one, every challenge
// redemption fails.
func (b *Builder) WithCodeVerifier(v CodeVerifier) *Builder {
	b.verifier = v
	return b
}

// WithMailTransport enables outbound notifications through t, wrapped in the
// configured rate gate and circuit breaker.
func (b *Builder) WithMailTransport(t dispatch.Transport) *Builder {
	b.transport = t
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for best-effort failure paths. Defaults to
// [slog.Default].
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the provider for lifecycle spans. Defaults to the
// global OpenTelemetry provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

// WithClock overrides the wall clock used for issuance timestamps and the
// circuit breaker. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	composer, err := NewComposer(cfg.Notification)
	if err != nil {
		return nil, err
	}

	// -------- STORE --------
	kv := store.NewRedis(b.redis, cfg.Store.Prefix, cfg.Store.OperationTimeout)
	creds := credential.NewStore(kv)

	// -------- SIGNING --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		kv:       kv,
		creds:    creds,
		jwt:      jm,
		accounts: b.accounts,
		verifier: b.verifier,
		composer: composer,
		audit:    internalaudit.NewDispatcher(internalaudit.Config(cfg.Audit), b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
		tracer:   newTracer(b.tracer),
		now:      now,
	}

	if cfg.Security.EnableLoginThrottle {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:                cfg.Store.Prefix,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}

	// -------- DISPATCH --------
	if b.transport != nil {
		d, err := dispatch.New(b.transport, dispatch.Config{
			Breaker: dispatch.BreakerConfig{
				FailureThreshold: cfg.Dispatch.FailureThreshold,
				SuccessThreshold: cfg.Dispatch.SuccessThreshold,
				OpenTimeout:      cfg.Dispatch.OpenDuration,
			},
			ReservoirSize:  cfg.Dispatch.ReservoirSize,
			RefillInterval: cfg.Dispatch.RefillInterval,
			SendTimeout:    cfg.Dispatch.SendTimeout,
		}, dispatch.WithClock(now))
		if err != nil {
			return nil, err
		}
		engine.dispatcher = d
	}

	engine.flows = flows.New(engine.flowDeps())

	b.built = true

	return engine, nil
}

func (e *Engine) flowDeps() flows.Deps {
	warn := func(msg string, args ...any) {
		e.logger.Warn(msg, args...)
	}

	issue := flows.IssueDeps{
		Store:        e.creds,
		CreateAccess: e.jwt.CreateAccess,
		NewSecret:    internal.NewSecret,
		NewID:        internal.NewCredentialID,
		AccessTTL:    e.config.JWT.AccessTTL,
		RefreshTTL:   e.config.Rotation.RefreshTTL,
		Now:          e.now,
	}
	issueFn := func(ctx context.Context, p flows.Principal) (*flows.Pair, error) {
		return flows.IssuePair(ctx, p, issue)
	}
	challenge := flows.ChallengeDeps{
		Store:     e.creds,
		NewSecret: internal.NewSecret,
		TTL:       e.config.Challenge.TTL,
		Now:       e.now,
	}

	login := flows.LoginDeps{
		FindPrincipal:  e.findByIdentifier,
		VerifyPassword: e.verifyPassword,
		IssueChallenge: func(ctx context.Context, p flows.Principal) (string, error) {
			return flows.IssueChallenge(ctx, p, challenge)
		},
		Issue: issueFn,
		Warn:  warn,
	}
	if e.limiter != nil {
		login.CheckRate = e.limiter.CheckLogin
		login.RecordFailure = e.limiter.IncrementLogin
		login.ResetRate = e.limiter.ResetLogin
	}

	return flows.Deps{
		Issue: issue,
		Validate: flows.ValidateDeps{
			ParseAccess:      e.jwt.ParseAccess,
			DecodeUnverified: e.jwt.DecodeUnverified,
			Expired:          e.jwt.Expired,
			Now:              e.now,
			Store:            e.creds,
		},
		Rotate: flows.RotateDeps{
			Store:            e.creds,
			GraceWindow:      e.config.Rotation.GraceWindow,
			RevokeAllOnReuse: e.config.Rotation.RevokeAllOnReuse,
			FindPrincipal:    e.findByID,
			Issue:            issueFn,
			Warn:             warn,
		},
		Logout: flows.LogoutDeps{
			Store: e.creds,
			Warn:  warn,
		},
		Revoke: flows.RevokeDeps{
			Store: e.creds,
		},
		Challenge: challenge,
		Redeem: flows.RedeemDeps{
			Store:      e.creds,
			VerifyCode: e.verifyCode,
			Issue:      issueFn,
		},
		Login: login,
	}
}

var errNoCodeVerifier = errors.New("no code verifier configured")

func (e *Engine) verifyCode(ctx context.Context, principalID, code string) (bool, error) {
	if e.verifier == nil {
		return false, errNoCodeVerifier
	}
	return e.verifier.VerifyCode(ctx, principalID, code)
}

func (e *Engine) verifyPassword(ctx context.Context, p flows.Principal, candidate string) (bool, error) {
	return e.accounts.VerifyPassword(ctx, fromFlowPrincipal(p), candidate)
}

func (e *Engine) findByIdentifier(ctx context.Context, identifier string) (flows.Principal, bool, error) {
	return e.lookup(e.accounts.FindPrincipalByIdentifier(ctx, identifier))
}

func (e *Engine) findByID(ctx context.Context, id string) (flows.Principal, bool, error) {
	return e.lookup(e.accounts.FindPrincipalByID(ctx, id))
}

func (e *Engine) lookup(p Principal, err error) (flows.Principal, bool, error) {
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return flows.Principal{}, false, nil
		}
		return flows.Principal{}, false, fmt.Errorf("account provider: %w", err)
	}
	return toFlowPrincipal(p), true, nil
}

func toFlowPrincipal(p Principal) flows.Principal {
	return flows.Principal{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		TenantID:    p.TenantID,
		Roles:       append([]string(nil), p.Roles...),
		MFAEnabled:  p.MFAEnabled,
	}
}

func fromFlowPrincipal(p flows.Principal) Principal {
	return Principal{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		TenantID:    p.TenantID,
		Roles:       append([]string(nil), p.Roles...),
		MFAEnabled:  p.MFAEnabled,
	}
}
