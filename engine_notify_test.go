package sessionguard

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/sessionguard/dispatch"
)

var tokenParam = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

func extractToken(t *testing.T, html string) string {
	t.Helper()
	m := tokenParam.FindStringSubmatch(html)
	if m == nil {
		t.Fatalf("no token link in %q", html)
	}
	return m[1]
}

func TestPasswordResetRoundTrip(t *testing.T) {
	transport := &recordingTransport{}
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{transport: transport})
	ctx := context.Background()

	pair := mustLogin(t, engine, "alice")

	if err := engine.RequestPasswordReset(ctx, "alice"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	sent := transport.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(sent))
	}
	if sent[0].To != "alice@example.com" || !strings.Contains(sent[0].Subject, "Reset") {
		t.Fatalf("unexpected mail %+v", sent[0])
	}

	token := extractToken(t, sent[0].HTML)
	p, err := engine.ConsumePasswordReset(ctx, token)
	if err != nil {
		t.Fatalf("ConsumePasswordReset failed: %v", err)
	}
	if p.ID != "u1" {
		t.Fatalf("unexpected principal %+v", p)
	}
	if _, err := engine.Validate(ctx, pair.AccessToken, ModeDirect); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected credentials revoked after reset, got %v", err)
	}
	if _, err := engine.ConsumePasswordReset(ctx, token); !errors.Is(err, ErrPasswordResetInvalid) {
		t.Fatalf("expected ErrPasswordResetInvalid on replay, got %v", err)
	}
}

func TestRequestPasswordResetNeverReveals(t *testing.T) {
	transport := &recordingTransport{}
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{transport: transport})
	ctx := context.Background()

	if err := engine.RequestPasswordReset(ctx, "nobody"); err != nil {
		t.Fatalf("expected nil for unknown identifier, got %v", err)
	}
	if len(transport.sent()) != 0 {
		t.Fatal("expected no mail for unknown identifier")
	}

	transport.setFail(errTransportDown)
	if err := engine.RequestPasswordReset(ctx, "alice"); err != nil {
		t.Fatalf("expected nil on dispatch failure, got %v", err)
	}
}

func TestRequestPasswordResetWithoutTransport(t *testing.T) {
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{})

	if err := engine.RequestPasswordReset(context.Background(), "alice"); err != nil {
		t.Fatalf("expected nil without transport, got %v", err)
	}
	if err := engine.SendChangeConfirmation(context.Background(), Principal{ID: "u1", Email: "a@b"}, "password"); !errors.Is(err, ErrNotificationsDisabled) {
		t.Fatalf("expected ErrNotificationsDisabled, got %v", err)
	}
}

func TestVerificationEmailRoundTrip(t *testing.T) {
	transport := &recordingTransport{}
	engine, _ := newTestEngine(t, engineTestConfig(), newMockAccountProvider(), testEngineOptions{transport: transport})
	ctx := context.Background()

	alice := Principal{ID: "u1", DisplayName: "Alice <admin>", Email: "alice@example.com"}
	if err := engine.SendVerificationEmail(ctx, alice); err != nil {
		t.Fatalf("SendVerificationEmail failed: %v", err)
	}
	sent := transport.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(sent))
	}
	if strings.Contains(sent[0].HTML, "<admin>") {
		t.Fatal("expected display name to be escaped")
	}

	p, err := engine.ConfirmEmailVerification(ctx, extractToken(t, sent[0].HTML))
	if err != nil || p.ID != "u1" {
		t.Fatalf("unexpected confirmation %+v err=%v", p, err)
	}
	if _, err := engine.ConfirmEmailVerification(ctx, extractToken(t, sent[0].HTML)); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected replayed verification to fail, got %v", err)
	}
}

func TestNotificationCircuitOpens(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Dispatch.FailureThreshold = 2
	cfg.Dispatch.ReservoirSize = 100
	transport := &recordingTransport{fail: errTransportDown}
	engine, _ := newTestEngine(t, cfg, newMockAccountProvider(), testEngineOptions{transport: transport})
	ctx := context.Background()
	alice := Principal{ID: "u1", Email: "alice@example.com"}

	for i := 0; i < 2; i++ {
		if err := engine.SendChangeConfirmation(ctx, alice, "password"); !errors.Is(err, ErrNotificationFailed) {
			t.Fatalf("attempt %d: expected ErrNotificationFailed, got %v", i+1, err)
		}
	}
	if err := engine.SendChangeConfirmation(ctx, alice, "password"); !errors.Is(err, ErrNotificationCircuitOpen) {
		t.Fatalf("expected ErrNotificationCircuitOpen, got %v", err)
	}
	if got := len(transport.sent()); got != 2 {
		t.Fatalf("expected open circuit to skip the transport, got %d calls", got)
	}

	snap, ok := engine.DispatchSnapshot()
	if !ok || snap.Breaker.State != dispatch.StateOpen {
		t.Fatalf("expected open breaker, got %+v", snap.Breaker)
	}

	engine.ResetDispatch()
	transport.setFail(nil)
	if err := engine.SendChangeConfirmation(ctx, alice, "password"); err != nil {
		t.Fatalf("expected send after reset, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricNotificationCircuitOpen]; got != 1 {
		t.Fatalf("expected 1 circuit-open metric, got %d", got)
	}
}

func TestNotificationRateLimited(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Dispatch.ReservoirSize = 1
	cfg.Dispatch.RefillInterval = time.Hour
	transport := &recordingTransport{}
	engine, _ := newTestEngine(t, cfg, newMockAccountProvider(), testEngineOptions{transport: transport})
	ctx := context.Background()
	alice := Principal{ID: "u1", Email: "alice@example.com"}

	if err := engine.SendChangeConfirmation(ctx, alice, "email"); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if err := engine.SendChangeConfirmation(ctx, alice, "email"); !errors.Is(err, ErrNotificationRateLimited) {
		t.Fatalf("expected ErrNotificationRateLimited, got %v", err)
	}
	if got := len(transport.sent()); got != 1 {
		t.Fatalf("expected one transport call, got %d", got)
	}
}
