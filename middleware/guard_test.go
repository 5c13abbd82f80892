package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/accounts"
	"github.com/MrEthical07/sessionguard/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGatewaySecret = "edge-marker-secret"

func newTestEngine(t *testing.T, mutate func(*sessionguard.Config)) (*sessionguard.Engine, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	dir := accounts.NewDirectory(hasher)
	require.NoError(t, dir.Add("alice", "correct-password-123", sessionguard.Principal{ID: "u1", DisplayName: "Alice", Roles: []string{"member"}}))

	cfg := sessionguard.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret")
	cfg.Audit.Enabled = false
	cfg.Validation.GatewaySecret = testGatewaySecret
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := sessionguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(dir).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, mr
}

func issueAccess(t *testing.T, engine *sessionguard.Engine) string {
	t.Helper()
	pair, err := engine.IssueTokens(context.Background(), sessionguard.Principal{ID: "u1", DisplayName: "Alice", Roles: []string{"member"}})
	require.NoError(t, err)
	return pair.AccessToken
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := sessionguard.AuthResultFromContext(r.Context())
		if !ok {
			http.Error(w, "no auth result", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(res.PrincipalID))
	})
}

func serve(h http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireDirectAttachesAuthResult(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	token := issueAccess(t, engine)
	h := RequireDirect(engine)(echoPrincipal())

	rec := serve(h, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())

	rec = serve(h, http.Header{"Authorization": {"bearer " + token}})
	assert.Equal(t, http.StatusOK, rec.Code, "scheme is case-insensitive")
}

func TestRequireDirectRejectsMissingAndInvalid(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	token := issueAccess(t, engine)
	h := RequireDirect(engine)(echoPrincipal())

	cases := map[string]http.Header{
		"no header":     {},
		"wrong scheme":  {"Authorization": {"Basic " + token}},
		"empty bearer":  {"Authorization": {"Bearer   "}},
		"garbage":       {"Authorization": {"Bearer not-a-token"}},
		"tampered sign": {"Authorization": {"Bearer " + token[:len(token)-2] + "xx"}},
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireDirectRejectsRevokedToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	token := issueAccess(t, engine)

	ok, err := engine.RevokeOne(context.Background(), token, sessionguard.KindAccess)
	require.NoError(t, err)
	require.True(t, ok)

	rec := serve(RequireDirect(engine)(echoPrincipal()), http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardReturnsServiceUnavailableWhenStoreDown(t *testing.T) {
	engine, mr := newTestEngine(t, func(c *sessionguard.Config) { c.Store.OperationTimeout = 200 * time.Millisecond })
	token := issueAccess(t, engine)
	mr.SetError("ERR injected failure")

	rec := serve(RequireDirect(engine)(echoPrincipal()), http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequireGatewayNeedsMarker(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	token := issueAccess(t, engine)
	h := RequireGateway(engine)(echoPrincipal())
	marker := engine.Config().Validation.GatewayHeader

	rec := serve(h, http.Header{"Authorization": {"Bearer " + token}, marker: {testGatewaySecret}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())

	rec = serve(h, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.Header{"Authorization": {"Bearer " + token}, marker: {"guess"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireGatewayFailsClosedWithoutSecret(t *testing.T) {
	engine, _ := newTestEngine(t, func(c *sessionguard.Config) { c.Validation.GatewaySecret = "" })
	token := issueAccess(t, engine)
	marker := engine.Config().Validation.GatewayHeader

	var seen error
	h := RequireGateway(engine, WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		seen = err
		w.WriteHeader(http.StatusForbidden)
	}))(echoPrincipal())

	rec := serve(h, http.Header{"Authorization": {"Bearer " + token}, marker: {""}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.ErrorIs(t, seen, ErrGatewayUnverified)
}

func TestGuardNilEngine(t *testing.T) {
	rec := serve(RequireDirect(nil)(echoPrincipal()), http.Header{"Authorization": {"Bearer x"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(RequireGateway(nil)(echoPrincipal()), http.Header{"Authorization": {"Bearer x"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardTrustedModeNeedsMarker(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	token := issueAccess(t, engine)
	h := Guard(engine, sessionguard.ModeTrustedGateway)(echoPrincipal())
	marker := engine.Config().Validation.GatewayHeader

	rec := serve(h, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.Header{"Authorization": {"Bearer " + token}, marker: {testGatewaySecret}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())
}
