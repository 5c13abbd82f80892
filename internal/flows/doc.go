// Package flows holds the stateless bodies of the engine operations: login,
// MFA confirmation, issuance, validation, rotation, logout and revocation.
//
// A flow receives its collaborators through a Deps struct and reports the
// outcome as a result value with a FailureKind. Translating that kind into a
// public error, a counter and an audit event is the caller's job.
//
// Flows never import the root package and keep no state between calls.
package flows
