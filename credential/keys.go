package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashSecret derives the key material for a presented secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func recordKey(kind Kind, id string) string {
	return string(kind) + ":" + id
}

func secretMapKey(secretHash string) string {
	return "secret_map:" + secretHash
}

func indexKey(principalID string, kind Kind) string {
	return "principal_tokens:" + principalID + ":" + string(kind)
}

func tombstoneKey(secretHash string) string {
	return "refresh_used:" + secretHash
}

func challengeKey(secretHash string) string {
	return "2fa_temp:" + secretHash
}

func resetKey(secretHash string) string {
	return "pwd_reset:" + secretHash
}

func verifyKey(secretHash string) string {
	return "email_verify:" + secretHash
}

func encodeMapValue(kind Kind, id string) []byte {
	return []byte(string(kind) + ":" + id)
}

func decodeMapValue(v []byte) (Kind, string, bool) {
	kind, id, ok := strings.Cut(string(v), ":")
	if !ok || id == "" {
		return "", "", false
	}
	k := Kind(kind)
	if !k.Valid() {
		return "", "", false
	}
	return k, id, true
}
