// Package middleware exposes HTTP guards that validate bearer access tokens
// through sessionguard.Engine.
//
// # Guards
//
//   - [RequireDirect] verifies the token signature and expiry, then the store.
//   - [RequireGateway] trusts an upstream gateway's signature check, but only for
//     requests carrying the configured gateway marker header. Without a matching
//     marker the request is rejected; it never falls through to the handler.
//   - [Guard] takes the mode explicitly.
//
// A guard attaches the validated result with sessionguard.WithAuthResult, so
// handlers read it back with sessionguard.AuthResultFromContext.
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or touch the store itself.
package middleware
