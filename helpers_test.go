package sessionguard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessionguard/dispatch"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockAccount struct {
	principal Principal
	password  string
}

type mockAccountProvider struct {
	mu           sync.Mutex
	accounts     map[string]mockAccount
	byIdentifier map[string]string
	failLookup   error
	failVerify   error
}

func newMockAccountProvider() *mockAccountProvider {
	up := &mockAccountProvider{
		accounts:     map[string]mockAccount{},
		byIdentifier: map[string]string{},
	}
	up.add("alice", "correct-password-123", Principal{ID: "u1", DisplayName: "Alice", Email: "alice@example.com", TenantID: "t1", Roles: []string{"member"}})
	up.add("bob", "correct-password-123", Principal{ID: "u2", DisplayName: "Bob", Email: "bob@example.com", TenantID: "t1", Roles: []string{"admin"}})
	up.add("carol", "correct-password-123", Principal{ID: "u3", DisplayName: "Carol", Email: "carol@example.com", TenantID: "t2", MFAEnabled: true})
	return up
}

func (m *mockAccountProvider) add(identifier, password string, p Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[p.ID] = mockAccount{principal: p, password: password}
	m.byIdentifier[identifier] = p.ID
}

func (m *mockAccountProvider) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
}

func (m *mockAccountProvider) FindPrincipalByIdentifier(_ context.Context, identifier string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLookup != nil {
		return Principal{}, m.failLookup
	}
	id, ok := m.byIdentifier[identifier]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	acc, ok := m.accounts[id]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return acc.principal, nil
}

func (m *mockAccountProvider) FindPrincipalByID(_ context.Context, id string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLookup != nil {
		return Principal{}, m.failLookup
	}
	acc, ok := m.accounts[id]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return acc.principal, nil
}

func (m *mockAccountProvider) VerifyPassword(_ context.Context, p Principal, candidate string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failVerify != nil {
		return false, m.failVerify
	}
	acc, ok := m.accounts[p.ID]
	return ok && acc.password == candidate, nil
}

type staticCodeVerifier struct {
	code string
}

func (v staticCodeVerifier) VerifyCode(_ context.Context, _ string, code string) (bool, error) {
	return code == v.code, nil
}

type recordingTransport struct {
	mu    sync.Mutex
	fail  error
	calls []dispatch.Message
}

func (r *recordingTransport) Send(_ context.Context, from, to, subject, html string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dispatch.Message{From: from, To: to, Subject: subject, HTML: html})
	if r.fail != nil {
		return "", r.fail
	}
	return fmt.Sprintf("msg-%d", len(r.calls)), nil
}

func (r *recordingTransport) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *recordingTransport) sent() []dispatch.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatch.Message(nil), r.calls...)
}

var errTransportDown = errors.New("provider down")

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret")
	cfg.Rotation.GraceWindow = 5 * time.Second
	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.LoginCooldownDuration = time.Minute
	cfg.Audit.Enabled = false
	return cfg
}

type testEngineOptions struct {
	transport dispatch.Transport
	sink      AuditSink
	verifier  CodeVerifier
}

func newTestEngine(t *testing.T, cfg Config, up AccountProvider, opts testEngineOptions) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(up)
	if opts.verifier != nil {
		builder.WithCodeVerifier(opts.verifier)
	}
	if opts.transport != nil {
		builder.WithMailTransport(opts.transport)
	}
	if opts.sink != nil {
		builder.WithAuditSink(opts.sink)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mr
}

func mustLogin(t *testing.T, e *Engine, identifier string) *TokenPair {
	t.Helper()

	res, err := e.Login(context.Background(), identifier, "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("expected tokens from login")
	}
	return res.Tokens
}
