package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/password"
)

// ErrDuplicateIdentifier is returned by [Directory.Add] for a taken identifier.
var ErrDuplicateIdentifier = errors.New("identifier already registered")

type account struct {
	principal    sessionguard.Principal
	identifier   string
	passwordHash string
	totpSecret   []byte
}

// Directory is a concurrency-safe in-memory account store. Identifiers are
// matched case-insensitively.
type Directory struct {
	hasher *password.Argon2

	mu           sync.RWMutex
	byID         map[string]*account
	byIdentifier map[string]string
}

// NewDirectory returns an empty [Directory] hashing passwords with hasher.
func NewDirectory(hasher *password.Argon2) *Directory {
	return &Directory{
		hasher:       hasher,
		byID:         make(map[string]*account),
		byIdentifier: make(map[string]string),
	}
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Add registers p under identifier with the given password.
func (d *Directory) Add(identifier, plaintext string, p sessionguard.Principal) error {
	key := normalizeIdentifier(identifier)
	if key == "" || p.ID == "" {
		return errors.New("identifier and principal id required")
	}
	hash, err := d.hasher.Hash(plaintext)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.byIdentifier[key]; taken {
		return ErrDuplicateIdentifier
	}
	if _, taken := d.byID[p.ID]; taken {
		return ErrDuplicateIdentifier
	}
	p.Roles = append([]string(nil), p.Roles...)
	d.byID[p.ID] = &account{principal: p, identifier: key, passwordHash: hash}
	d.byIdentifier[key] = p.ID
	return nil
}

// SetPassword replaces the password of principal id.
func (d *Directory) SetPassword(id, plaintext string) error {
	hash, err := d.hasher.Hash(plaintext)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.byID[id]
	if !ok {
		return sessionguard.ErrPrincipalNotFound
	}
	acc.passwordHash = hash
	return nil
}

// EnableTOTP stores secret for principal id and marks it as requiring a second
// factor.
func (d *Directory) EnableTOTP(id string, secret []byte) error {
	if len(secret) == 0 {
		return errors.New("empty totp secret")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.byID[id]
	if !ok {
		return sessionguard.ErrPrincipalNotFound
	}
	acc.totpSecret = append([]byte(nil), secret...)
	acc.principal.MFAEnabled = true
	return nil
}

// Remove deletes principal id. Its credentials stay valid until revoked; the
// next refresh fails because the principal is gone.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if acc, ok := d.byID[id]; ok {
		delete(d.byIdentifier, acc.identifier)
		delete(d.byID, id)
	}
}

// FindPrincipalByIdentifier implements sessionguard.AccountProvider.
func (d *Directory) FindPrincipalByIdentifier(_ context.Context, identifier string) (sessionguard.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byIdentifier[normalizeIdentifier(identifier)]
	if !ok {
		return sessionguard.Principal{}, sessionguard.ErrPrincipalNotFound
	}
	return clonePrincipal(d.byID[id].principal), nil
}

// FindPrincipalByID implements sessionguard.AccountProvider.
func (d *Directory) FindPrincipalByID(_ context.Context, id string) (sessionguard.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.byID[id]
	if !ok {
		return sessionguard.Principal{}, sessionguard.ErrPrincipalNotFound
	}
	return clonePrincipal(acc.principal), nil
}

// VerifyPassword implements sessionguard.AccountProvider.
func (d *Directory) VerifyPassword(_ context.Context, p sessionguard.Principal, candidate string) (bool, error) {
	d.mu.RLock()
	acc, ok := d.byID[p.ID]
	var hash string
	if ok {
		hash = acc.passwordHash
	}
	d.mu.RUnlock()
	if !ok {
		return false, nil
	}
	// hashing runs outside the lock
	match, rehash, err := d.hasher.Check(candidate, hash)
	if err != nil || !match {
		return false, err
	}
	if rehash {
		d.upgradeHash(p.ID, hash, candidate)
	}
	return true, nil
}

// upgradeHash re-hashes a verified password under the current parameters. The
// stored hash is replaced only if no SetPassword happened in between.
func (d *Directory) upgradeHash(id, old, plaintext string) {
	fresh, err := d.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if acc, ok := d.byID[id]; ok && acc.passwordHash == old {
		acc.passwordHash = fresh
	}
}

// TOTPSecret implements [SecretSource].
func (d *Directory) TOTPSecret(_ context.Context, principalID string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.byID[principalID]
	if !ok {
		return nil, sessionguard.ErrPrincipalNotFound
	}
	if len(acc.totpSecret) == 0 {
		return nil, ErrTOTPNotEnrolled
	}
	return append([]byte(nil), acc.totpSecret...), nil
}

func clonePrincipal(p sessionguard.Principal) sessionguard.Principal {
	p.Roles = append([]string(nil), p.Roles...)
	return p
}
