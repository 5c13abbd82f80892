package sessionguard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshConcurrentCallersInsideGrace(t *testing.T) {
	cfg := engineTestConfig()
	engine, mr := newTestEngine(t, cfg, newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	original := mustLogin(t, engine, "alice")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	type outcome struct {
		pair *TokenPair
		err  error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			pair, err := engine.Refresh(ctx, original.RefreshToken)
			results <- outcome{pair: pair, err: err}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{original.RefreshToken: true}
	for r := range results {
		if r.err != nil {
			t.Fatalf("unexpected refresh error inside grace window: %v", r.err)
		}
		if seen[r.pair.RefreshToken] {
			t.Fatal("expected every concurrent caller to receive a distinct refresh token")
		}
		seen[r.pair.RefreshToken] = true
		if _, err := engine.ValidateAccess(ctx, r.pair.AccessToken); err != nil {
			t.Fatalf("issued access token does not validate: %v", err)
		}
	}

	mr.FastForward(cfg.Rotation.GraceWindow + time.Second)
	if _, err := engine.Refresh(ctx, original.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after grace window, got %v", err)
	}
}

func TestRevokeAllRacesWithRefresh(t *testing.T) {
	cfg := engineTestConfig()
	engine, _ := newTestEngine(t, cfg, newMockAccountProvider(), testEngineOptions{})
	ctx := context.Background()

	pairs := make([]*TokenPair, 8)
	for i := range pairs {
		pairs[i] = mustLogin(t, engine, "alice")
	}

	var wg sync.WaitGroup
	wg.Add(len(pairs) + 1)
	go func() {
		defer wg.Done()
		if _, err := engine.RevokeAll(ctx, "u1"); err != nil {
			t.Errorf("RevokeAll failed: %v", err)
		}
	}()
	for _, p := range pairs {
		go func(p *TokenPair) {
			defer wg.Done()
			_, err := engine.Refresh(ctx, p.RefreshToken)
			if err != nil && !errors.Is(err, ErrRefreshInvalid) {
				t.Errorf("unexpected refresh error: %v", err)
			}
		}(p)
	}
	wg.Wait()

	// A second pass removes anything issued while the first was enumerating.
	if _, err := engine.RevokeAll(ctx, "u1"); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	for _, p := range pairs {
		if _, err := engine.ValidateAccess(ctx, p.AccessToken); err == nil {
			t.Fatal("expected access token to be revoked")
		}
		if _, err := engine.Refresh(ctx, p.RefreshToken); err == nil {
			t.Fatal("expected refresh token to be revoked")
		}
	}
}
