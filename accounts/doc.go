// Package accounts provides an in-memory account directory and an RFC 6238 TOTP
// code verifier.
//
// [Directory] implements sessionguard.AccountProvider with Argon2id password
// hashes from package password. [TOTP] implements sessionguard.CodeVerifier and
// reads per-principal secrets through a [SecretSource], which [Directory] also
// satisfies. Both back the cmd/sessionguard demo server and the engine tests;
// production deployments plug their own account store into the same
// interfaces.
package accounts
