package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionguard/store"
)

var (
	// ErrNotFound is returned when a secret does not resolve to a live record.
	ErrNotFound = errors.New("credential not found")
	// ErrChallengeNotFound is returned when a challenge is missing, consumed, or expired.
	ErrChallengeNotFound = errors.New("challenge not found")
)

// Resolved is a live record together with the lifetime it has left. Remaining is
// the shorter of the record's and the secret map entry's TTL.
type Resolved struct {
	Record     *Record
	SecretHash string
	Remaining  time.Duration
}

// Store persists credentials through a [store.Client].
//
// Store methods are safe for concurrent use and never hold locks across I/O.
type Store struct {
	kv  store.Client
	now func() time.Time
}

// NewStore creates a credential [Store] over kv.
func NewStore(kv store.Client) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Put writes the record, the secret map entry and the principal index entry.
//
// The three writes are independent idempotent upserts. A failure after the first
// write leaves a credential that is either unreachable or missing from the index;
// neither grants access that was not intended.
//
//	Performance: 3 store round trips (SET, SET, EVALSHA).
func (s *Store) Put(ctx context.Context, rec *Record, secret string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("credential ttl must be positive")
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	hash := HashSecret(secret)
	if err := s.kv.Set(ctx, recordKey(rec.Kind, rec.ID), data, ttl); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, secretMapKey(hash), encodeMapValue(rec.Kind, rec.ID), ttl); err != nil {
		return err
	}
	return s.kv.SetAdd(ctx, indexKey(rec.PrincipalID, rec.Kind), rec.ID, ttl)
}

// Resolve maps a presented secret to its live record of the expected kind.
// It returns ErrNotFound for unknown secrets, kind mismatches and records whose
// absolute expiry has passed. Store failures are returned unchanged so callers
// can fail closed.
func (s *Store) Resolve(ctx context.Context, kind Kind, secret string) (*Resolved, error) {
	hash := HashSecret(secret)

	mapped, mapTTL, err := s.kv.GetWithTTL(ctx, secretMapKey(hash))
	if err != nil {
		return nil, notFoundOr(err)
	}
	mappedKind, id, ok := decodeMapValue(mapped)
	if !ok || mappedKind != kind {
		return nil, ErrNotFound
	}

	data, recTTL, err := s.kv.GetWithTTL(ctx, recordKey(kind, id))
	if err != nil {
		return nil, notFoundOr(err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	if rec.ID != id || rec.Kind != kind {
		return nil, ErrCorrupt
	}
	if rec.ExpiresAt > 0 && s.now().Unix() >= rec.ExpiresAt {
		return nil, ErrNotFound
	}

	return &Resolved{
		Record:     rec,
		SecretHash: hash,
		Remaining:  shorterTTL(mapTTL, recTTL),
	}, nil
}

// Demote shortens a resolved renewal credential (record and secret map entry) to
// grace and writes a reuse tombstone that outlives it by the credential's former
// remaining lifetime. Errors from the individual writes are joined; callers on
// the rotation path log them and continue.
func (s *Store) Demote(ctx context.Context, res *Resolved, grace time.Duration) error {
	if res == nil || res.Record == nil {
		return errors.New("nil resolved credential")
	}
	if grace <= 0 {
		grace = time.Millisecond
	}

	var errs []error
	if _, err := s.kv.Expire(ctx, recordKey(res.Record.Kind, res.Record.ID), grace); err != nil {
		errs = append(errs, fmt.Errorf("demote record: %w", err))
	}
	if _, err := s.kv.Expire(ctx, secretMapKey(res.SecretHash), grace); err != nil {
		errs = append(errs, fmt.Errorf("demote secret map: %w", err))
	}

	tombstoneTTL := res.Remaining
	if tombstoneTTL <= grace {
		tombstoneTTL = grace
	}
	if err := s.kv.Set(ctx, tombstoneKey(res.SecretHash), []byte(res.Record.PrincipalID), tombstoneTTL); err != nil {
		errs = append(errs, fmt.Errorf("write reuse tombstone: %w", err))
	}
	return errors.Join(errs...)
}

// ConsumedBy reports the principal a demoted renewal secret belonged to, if the
// secret was rotated away and its tombstone is still live.
func (s *Store) ConsumedBy(ctx context.Context, secret string) (string, bool, error) {
	principalID, err := s.kv.Get(ctx, tombstoneKey(HashSecret(secret)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(principalID), true, nil
}

// RevokeOne deletes the record and the secret map entry for secret. It returns
// false when the secret is unknown or belongs to another kind, which makes a
// repeated call a harmless no-op. The principal index is left untouched.
func (s *Store) RevokeOne(ctx context.Context, kind Kind, secret string) (bool, error) {
	hash := HashSecret(secret)

	mapped, err := s.kv.Get(ctx, secretMapKey(hash))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	mappedKind, id, ok := decodeMapValue(mapped)
	if !ok || mappedKind != kind {
		return false, nil
	}

	if _, err := s.kv.Delete(ctx, recordKey(kind, id), secretMapKey(hash)); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeAll deletes every indexed record of every kind for principalID and then
// the indexes themselves. It returns the number of records that existed.
//
// ATOMICITY NOTE: this is enumerate-then-delete. A credential issued between the
// index read and the index delete may survive; it is still bounded by its own
// lifetime and a follow-up RevokeAll removes it.
func (s *Store) RevokeAll(ctx context.Context, principalID string) (int, error) {
	total := 0
	for _, kind := range Kinds {
		ids, err := s.kv.SetMembers(ctx, indexKey(principalID, kind))
		if err != nil {
			return total, err
		}
		if len(ids) > 0 {
			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = recordKey(kind, id)
			}
			n, err := s.kv.Delete(ctx, keys...)
			if err != nil {
				return total, err
			}
			total += int(n)
		}
		if _, err := s.kv.Delete(ctx, indexKey(principalID, kind)); err != nil {
			return total, err
		}
	}
	return total, nil
}

// IndexedIDs returns the advisory index for principalID and kind.
func (s *Store) IndexedIDs(ctx context.Context, principalID string, kind Kind) ([]string, error) {
	return s.kv.SetMembers(ctx, indexKey(principalID, kind))
}

// PutChallenge stores a challenge snapshot under the hashed secret.
func (s *Store) PutChallenge(ctx context.Context, secret string, c *Challenge, ttl time.Duration) error {
	return s.putSnapshot(ctx, challengeKey(HashSecret(secret)), c, ttl)
}

// TakeChallenge atomically reads and deletes a challenge. A second call with the
// same secret always returns ErrChallengeNotFound.
func (s *Store) TakeChallenge(ctx context.Context, secret string) (*Challenge, error) {
	return s.takeSnapshot(ctx, challengeKey(HashSecret(secret)))
}

// PutResetTicket stores a password reset ticket. Tickets share the challenge
// snapshot encoding but live under their own key family.
func (s *Store) PutResetTicket(ctx context.Context, secret string, c *Challenge, ttl time.Duration) error {
	return s.putSnapshot(ctx, resetKey(HashSecret(secret)), c, ttl)
}

// TakeResetTicket atomically reads and deletes a password reset ticket.
func (s *Store) TakeResetTicket(ctx context.Context, secret string) (*Challenge, error) {
	return s.takeSnapshot(ctx, resetKey(HashSecret(secret)))
}

// PutVerificationTicket stores an email verification ticket.
func (s *Store) PutVerificationTicket(ctx context.Context, secret string, c *Challenge, ttl time.Duration) error {
	return s.putSnapshot(ctx, verifyKey(HashSecret(secret)), c, ttl)
}

// TakeVerificationTicket atomically reads and deletes an email verification ticket.
func (s *Store) TakeVerificationTicket(ctx context.Context, secret string) (*Challenge, error) {
	return s.takeSnapshot(ctx, verifyKey(HashSecret(secret)))
}

func (s *Store) putSnapshot(ctx context.Context, key string, c *Challenge, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("challenge ttl must be positive")
	}
	data, err := EncodeChallenge(c)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, data, ttl)
}

func (s *Store) takeSnapshot(ctx context.Context, key string) (*Challenge, error) {
	data, err := s.kv.GetDel(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	c, err := DecodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if c.ExpiresAt > 0 && s.now().Unix() >= c.ExpiresAt {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func shorterTTL(a, b time.Duration) time.Duration {
	switch {
	case a == store.NoExpiry:
		return b
	case b == store.NoExpiry:
		return a
	case a < b:
		return a
	}
	return b
}
