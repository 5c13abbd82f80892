// Package sessionguard issues, validates, rotates and revokes the credentials of
// a multi-tenant application.
//
// A successful login yields a short-lived signed access token and a long-lived
// opaque refresh token. Both are tracked server-side so either can be revoked
// before it expires. Refresh tokens are single-rotation: presenting one yields a
// brand-new pair and demotes the old secret to a short grace window, after which
// it is gone for good. Principals with a second factor receive a one-time
// challenge instead of tokens.
//
// Engine methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// sessionguard is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Flow orchestration, the login throttle, metrics storage and
// audit dispatch live under internal/. Storage lives in store and credential,
// token signing in jwt, outbound notifications in dispatch.
//
// # What this package must NOT do
//
//   - Hold or log raw secrets. Secrets are hashed before they become key material.
//   - Treat a credential store failure as a successful validation.
//   - Import any sub-package that re-imports sessionguard (no import cycles).
package sessionguard
