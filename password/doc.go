// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and key are unpadded standard base64. [Argon2.Check] verifies and, on a
// match, reports whether the hash predates the current [Config] so account
// stores can re-hash while the plaintext is at hand.
//
// sessionguard itself never sees passwords at rest. The reference account
// directory in package accounts uses this package; production account stores
// may use it or their own scheme behind the AccountProvider interface.
package password
