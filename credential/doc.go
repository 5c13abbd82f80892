// Package credential persists credential records, the secret→identifier map, the
// per-principal index, reuse tombstones and multi-factor challenges on top of a
// [store.Client].
//
// # Key layout
//
//	access:<id>                       access record (CBOR)
//	refresh:<id>                      renewal record (CBOR)
//	secret_map:<sha256(secret)>       "<kind>:<id>", same TTL as the record
//	principal_tokens:<principal>:<kind> set of live ids, TTL >= longest member
//	refresh_used:<sha256(secret)>     principal id of a demoted renewal secret
//	2fa_temp:<sha256(secret)>         challenge snapshot (CBOR), single use
//	pwd_reset:<sha256(secret)>        password reset ticket (CBOR), single use
//	email_verify:<sha256(secret)>     email verification ticket (CBOR), single use
//
// Secrets are hashed before they become key material; the store never holds a
// presentable secret.
//
// # Consistency
//
// Only single-key atomicity is assumed. The principal index is advisory: it is
// consulted for enumeration and mass revocation, never as proof that a credential
// exists or does not exist. Authority always resolves through the identifier-keyed
// record.
//
// # What this package must NOT do
//
//   - Parse or sign access tokens.
//   - Decide whether a grace-window reuse is acceptable (that is a flow decision).
//   - Import the root sessionguard package.
package credential
