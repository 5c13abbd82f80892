package sessionguard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoginValidateRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatal("expected refresh token to outlive access token")
	}

	for _, mode := range []ValidationMode{ModeDirect, ModeTrustedGateway} {
		res, err := engine.Validate(ctx, pair.AccessToken, mode)
		if err != nil {
			t.Fatalf("validate %s failed: %v", mode, err)
		}
		if res.PrincipalID != "u1" || res.DisplayName != "Alice" || res.TenantID != "t1" {
			t.Fatalf("unexpected result in %s mode: %+v", mode, res)
		}
		if len(res.Roles) != 1 || res.Roles[0] != "member" {
			t.Fatalf("unexpected roles %v", res.Roles)
		}
		if res.CredentialID == "" || res.CredentialID == res.TokenID {
			t.Fatalf("expected store id independent of jti, got %q / %q", res.CredentialID, res.TokenID)
		}
	}

	view, err := engine.ValidateToken(ctx, pair.AccessToken)
	if err != nil || !view.Valid || view.Principal.PrincipalID != "u1" {
		t.Fatalf("unexpected token view %+v err=%v", view, err)
	}
}

func TestValidateRejectsRevokedAndGarbage(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")
	revoked, err := engine.RevokeOne(ctx, pair.AccessToken, KindAccess)
	if err != nil || !revoked {
		t.Fatalf("expected access revoke, got %v err=%v", revoked, err)
	}

	for _, mode := range []ValidationMode{ModeDirect, ModeTrustedGateway} {
		if _, err := engine.Validate(ctx, pair.AccessToken, mode); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for revoked token in %s mode, got %v", mode, err)
		}
		if _, err := engine.Validate(ctx, "not-a-token", mode); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for garbage in %s mode, got %v", mode, err)
		}
	}
	if _, err := engine.Validate(ctx, "", ModeDirect); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, err := engine.Validate(ctx, pair.AccessToken, ValidationMode(9)); !errors.Is(err, ErrInvalidValidationMode) {
		t.Fatalf("expected ErrInvalidValidationMode, got %v", err)
	}

	view, err := engine.ValidateToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken must not error on judgments: %v", err)
	}
	if view.Valid || view.Principal != nil {
		t.Fatalf("expected invalid view, got %+v", view)
	}
}

func TestValidateTamperedSignature(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")
	tampered := pair.AccessToken[:strings.LastIndex(pair.AccessToken, ".")+1] + "c2lnbmF0dXJl"

	for _, mode := range []ValidationMode{ModeDirect, ModeTrustedGateway} {
		if _, err := engine.Validate(ctx, tampered, mode); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected tampered token rejected in %s mode, got %v", mode, err)
		}
	}
}

func TestValidateFailsClosedWhenStoreUnavailable(t *testing.T) {
	engine, mr := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")

	mr.SetError("ERR injected failure")
	for _, mode := range []ValidationMode{ModeDirect, ModeTrustedGateway} {
		res, err := engine.Validate(ctx, pair.AccessToken, mode)
		if !errors.Is(err, ErrDependencyUnavailable) {
			t.Fatalf("expected ErrDependencyUnavailable in %s mode, got %v", mode, err)
		}
		if res != nil {
			t.Fatalf("expected no result on store failure, got %+v", res)
		}
	}
	if _, err := engine.ValidateToken(ctx, pair.AccessToken); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ValidateToken to propagate store failure, got %v", err)
	}
	if err := engine.Ping(ctx); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected Ping failure, got %v", err)
	}
	mr.SetError("")

	if _, err := engine.Validate(ctx, pair.AccessToken, ModeDirect); err != nil {
		t.Fatalf("expected recovery once store is back, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricValidateUnavailable]; got != 3 {
		t.Fatalf("expected 3 unavailable validations, got %d", got)
	}
}

func TestLoginInvalidCredentialsUniform(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	if _, err := engine.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := engine.Login(ctx, "nobody", "whatever-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown identifier, got %v", err)
	}
	if _, err := engine.Login(ctx, "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty input, got %v", err)
	}
}

func TestLoginThrottleBlocksAfterBudget(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Security.MaxLoginAttempts = 3
	engine, mr := newTestEngine(t, cfg, newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if _, err := engine.Login(ctx, "alice", "correct-password-123"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}

	mr.FastForward(cfg.Security.LoginCooldownDuration + time.Second)
	mustLogin(t, engine, "alice")
}

func TestLoginAccountProviderFailure(t *testing.T) {
	up := newMockAccountProvider()
	engine, _ := newTestEngine(t, engineTestConfig(), up, testEngineOptions{})

	up.failLookup = errors.New("db down")
	if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
}

func TestLoginPasswordCheckFailureIsNotCountedAsMismatch(t *testing.T) {
	up := newMockAccountProvider()
	engine, _ := newTestEngine(t, engineTestConfig(), up, testEngineOptions{})
	ctx := context.Background()

	up.mu.Lock()
	up.failVerify = errors.New("hash store down")
	up.mu.Unlock()
	for i := 0; i < 5; i++ {
		_, err := engine.Login(ctx, "alice", "correct-password-123")
		if !errors.Is(err, ErrDependencyUnavailable) {
			t.Fatalf("attempt %d: expected ErrDependencyUnavailable, got %v", i, err)
		}
		if errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: backend failure reported as bad password", i)
		}
	}

	up.mu.Lock()
	up.failVerify = nil
	up.mu.Unlock()
	mustLogin(t, engine, "alice")
}

func TestRefreshRotationGraceWindow(t *testing.T) {
	cfg := engineTestConfig()
	engine, mr := newTestEngine(t, cfg, newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	original := mustLogin(t, engine, "alice")

	first, err := engine.Refresh(ctx, original.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	second, err := engine.Refresh(ctx, original.RefreshToken)
	if err != nil {
		t.Fatalf("refresh inside grace window failed: %v", err)
	}
	if first.RefreshToken == original.RefreshToken ||
		second.RefreshToken == original.RefreshToken ||
		first.RefreshToken == second.RefreshToken {
		t.Fatal("expected three distinct refresh tokens")
	}

	mr.FastForward(cfg.Rotation.GraceWindow + time.Second)

	if _, err := engine.Refresh(ctx, original.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after grace window, got %v", err)
	}
	if _, err := engine.Refresh(ctx, first.RefreshToken); err != nil {
		t.Fatalf("expected rotated token to remain usable: %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshGraceReuse] != 1 {
		t.Fatalf("expected 1 grace reuse, got %d", snap.Counters[MetricRefreshGraceReuse])
	}
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("expected 1 reuse detection, got %d", snap.Counters[MetricRefreshReuseDetected])
	}
}

func TestRefreshReuseRevokesAllWhenConfigured(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Rotation.RevokeAllOnReuse = true
	engine, mr := newTestEngine(t, cfg, newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	original := mustLogin(t, engine, "alice")
	rotated, err := engine.Refresh(ctx, original.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	mr.FastForward(cfg.Rotation.GraceWindow + time.Second)
	if _, err := engine.Refresh(ctx, original.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid on reuse, got %v", err)
	}
	if _, err := engine.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected descendant token revoked after reuse, got %v", err)
	}
	if _, err := engine.Validate(ctx, rotated.AccessToken, ModeDirect); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected descendant access token revoked, got %v", err)
	}
}

func TestRefreshRereadsPrincipal(t *testing.T) {
	up := newMockAccountProvider()
	engine, _ := newTestEngine(t, engineTestConfig(), up, testEngineOptions{})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")
	up.remove("u1")

	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for vanished principal, got %v", err)
	}
}

func TestRefreshRejectsAccessTokenAndUnknown(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")
	if _, err := engine.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected access token to be refused as refresh, got %v", err)
	}
	if _, err := engine.Refresh(ctx, "unknown"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
	if _, err := engine.Refresh(ctx, ""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestLogoutRevokesBothCredentials(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")
	if err := engine.Logout(ctx, pair.RefreshToken, pair.AccessToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := engine.Validate(ctx, pair.AccessToken, ModeDirect); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected access token revoked, got %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected refresh token revoked, got %v", err)
	}
	if err := engine.Logout(ctx, pair.RefreshToken, ""); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound on repeat, got %v", err)
	}
}

func TestLogoutUnknownRefreshStillRevokesAccess(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")
	if err := engine.Logout(ctx, "unknown", pair.AccessToken); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound, got %v", err)
	}
	if _, err := engine.Validate(ctx, pair.AccessToken, ModeDirect); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected best-effort access revoke, got %v", err)
	}
}

func TestRevokeOneIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")

	if ok, err := engine.RevokeOne(ctx, pair.RefreshToken, KindAccess); err != nil || ok {
		t.Fatalf("expected kind mismatch to revoke nothing, got %v err=%v", ok, err)
	}
	first, err := engine.RevokeOne(ctx, pair.RefreshToken, KindRefresh)
	if err != nil || !first {
		t.Fatalf("expected first revoke true, got %v err=%v", first, err)
	}
	second, err := engine.RevokeOne(ctx, pair.RefreshToken, KindRefresh)
	if err != nil || second {
		t.Fatalf("expected second revoke false, got %v err=%v", second, err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after revoke, got %v", err)
	}
}

func TestRevokeAllCompleteness(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	const n = 3
	pairs := make([]*TokenPair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, mustLogin(t, engine, "bob"))
	}
	other := mustLogin(t, engine, "alice")

	revoked, err := engine.RevokeAll(ctx, "u2")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if revoked < 2*n {
		t.Fatalf("expected at least %d revoked, got %d", 2*n, revoked)
	}
	for _, p := range pairs {
		if _, err := engine.Validate(ctx, p.AccessToken, ModeDirect); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected access token revoked, got %v", err)
		}
		if _, err := engine.Refresh(ctx, p.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("expected refresh token revoked, got %v", err)
		}
	}
	if _, err := engine.Validate(ctx, other.AccessToken, ModeDirect); err != nil {
		t.Fatalf("other principal must be untouched: %v", err)
	}

	again, err := engine.RevokeAll(ctx, "u2")
	if err != nil || again != 0 {
		t.Fatalf("expected repeated RevokeAll to find nothing, got %d err=%v", again, err)
	}
}

func TestChallengeSingleUse(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{
		verifier: staticCodeVerifier{code: "123456"},
	})
	ctx := context.Background()

	res, err := engine.Login(ctx, "carol", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !res.MFARequired || res.ChallengeToken == "" || res.Tokens != nil {
		t.Fatalf("expected challenge instead of tokens, got %+v", res)
	}

	pair, err := engine.RedeemChallenge(ctx, res.ChallengeToken, "123456")
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	auth, err := engine.Validate(ctx, pair.AccessToken, ModeDirect)
	if err != nil || auth.PrincipalID != "u3" || auth.TenantID != "t2" {
		t.Fatalf("unexpected validation of redeemed pair %+v err=%v", auth, err)
	}

	if _, err := engine.RedeemChallenge(ctx, res.ChallengeToken, "123456"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected replay to fail with ErrChallengeInvalid, got %v", err)
	}
}

func TestChallengeConsumedByWrongCode(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{
		verifier: staticCodeVerifier{code: "123456"},
	})
	ctx := context.Background()

	res, err := engine.Login(ctx, "carol", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.RedeemChallenge(ctx, res.ChallengeToken, "000000"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid for wrong code, got %v", err)
	}
	if _, err := engine.RedeemChallenge(ctx, res.ChallengeToken, "123456"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected consumed challenge to stay invalid, got %v", err)
	}
}

func TestChallengeExpires(t *testing.T) {
	cfg := engineTestConfig()
	engine, mr := newTestEngine(t, cfg, newMockAccountProvider(), testEngineOptions{
		verifier: staticCodeVerifier{code: "123456"},
	})
	ctx := context.Background()

	secret, err := engine.IssueChallenge(ctx, Principal{ID: "u3", DisplayName: "Carol"})
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}
	mr.FastForward(cfg.Challenge.TTL + time.Second)
	if _, err := engine.RedeemChallenge(ctx, secret, "123456"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected expired challenge to fail, got %v", err)
	}
}

func TestChallengeWithoutVerifierFails(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	res, err := engine.Login(ctx, "carol", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.RedeemChallenge(ctx, res.ChallengeToken, "123456"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid without verifier, got %v", err)
	}
}

func TestAuditEventsForReuse(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(64)
	engine, mr := newTestEngine(t, cfg, newMockAccountProvider(), testEngineOptions{sink: sink})
	ctx := WithClientIP(context.Background(), "10.0.0.1")

	pair, err := engine.Login(ctx, "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.Tokens.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	mr.FastForward(cfg.Rotation.GraceWindow + time.Second)
	_, _ = engine.Refresh(ctx, pair.Tokens.RefreshToken)

	want := []string{auditEventLoginSuccess, auditEventRefreshSuccess, auditEventRefreshReuseDetected}
	for _, eventType := range want {
		select {
		case ev := <-sink.Events():
			if ev.EventType != eventType {
				t.Fatalf("expected %s, got %s", eventType, ev.EventType)
			}
			if ev.IP != "10.0.0.1" {
				t.Fatalf("expected client ip on event, got %q", ev.IP)
			}
			if eventType == auditEventRefreshReuseDetected {
				if ev.Success || ev.Error != string(auditErrRefreshReuse) || ev.PrincipalID != "u1" {
					t.Fatalf("unexpected reuse event %+v", ev)
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var engine *Engine
	if _, err := engine.Login(context.Background(), "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Validate(context.Background(), "t", ModeDirect); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	engine.Close()
}

func TestBuilderRequiresDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(engineTestConfig()).WithAccountProvider(newMockAccountProvider()).Build(); err == nil {
		t.Fatal("expected missing redis to fail")
	}
	if _, err := New().WithConfig(engineTestConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected missing account provider to fail")
	}

	b := New().WithConfig(engineTestConfig()).WithRedis(rdb).WithAccountProvider(newMockAccountProvider())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
