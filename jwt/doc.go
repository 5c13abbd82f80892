// Package jwt issues and verifies the signed access credentials handed to clients.
//
// The signed payload is advisory: it carries the principal id, display name and a
// claims snapshot for convenience, but a token is only valid while the credential
// record it belongs to still exists in the store. The token's own "jti" claim is
// deliberately independent of the store identifier.
//
// Two read paths exist: [Manager.ParseAccess] verifies signature, expiry, issuer and
// audience; [Manager.DecodeUnverified] only decodes, for deployments where a trusted
// gateway already verified the signature.
package jwt
