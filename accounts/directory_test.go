package accounts

import (
	"context"
	"testing"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)
	return NewDirectory(hasher)
}

func TestDirectoryFindsByIdentifierAndID(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.Add("Alice@Example.com", "correct-password-123", sessionguard.Principal{
		ID:          "u1",
		DisplayName: "Alice",
		Email:       "alice@example.com",
		Roles:       []string{"member"},
	}))

	p, err := d.FindPrincipalByIdentifier(ctx, "  alice@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)

	p.Roles[0] = "admin"
	again, err := d.FindPrincipalByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"member"}, again.Roles, "returned principals must not alias directory state")

	_, err = d.FindPrincipalByIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, sessionguard.ErrPrincipalNotFound)
	_, err = d.FindPrincipalByID(ctx, "u404")
	assert.ErrorIs(t, err, sessionguard.ErrPrincipalNotFound)
}

func TestDirectoryVerifyPassword(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	p := sessionguard.Principal{ID: "u1"}
	require.NoError(t, d.Add("alice", "correct-password-123", p))

	ok, err := d.VerifyPassword(ctx, p, "correct-password-123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.VerifyPassword(ctx, p, "wrong-password-123")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.SetPassword("u1", "another-password-456"))
	ok, err = d.VerifyPassword(ctx, p, "correct-password-123")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = d.VerifyPassword(ctx, p, "another-password-456")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.VerifyPassword(ctx, sessionguard.Principal{ID: "ghost"}, "correct-password-123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectoryRejectsDuplicatesAndShortPasswords(t *testing.T) {
	d := newTestDirectory(t)

	require.NoError(t, d.Add("alice", "correct-password-123", sessionguard.Principal{ID: "u1"}))
	assert.ErrorIs(t, d.Add("ALICE", "correct-password-123", sessionguard.Principal{ID: "u2"}), ErrDuplicateIdentifier)
	assert.ErrorIs(t, d.Add("alice2", "correct-password-123", sessionguard.Principal{ID: "u1"}), ErrDuplicateIdentifier)
	assert.ErrorIs(t, d.Add("bob", "short", sessionguard.Principal{ID: "u2"}), password.ErrPasswordTooShort)
	assert.Error(t, d.Add("", "correct-password-123", sessionguard.Principal{ID: "u3"}))
	assert.ErrorIs(t, d.SetPassword("ghost", "correct-password-123"), sessionguard.ErrPrincipalNotFound)
}

func TestDirectoryRemove(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, d.Add("alice", "correct-password-123", sessionguard.Principal{ID: "u1"}))

	d.Remove("u1")
	d.Remove("u1")

	_, err := d.FindPrincipalByIdentifier(ctx, "alice")
	assert.ErrorIs(t, err, sessionguard.ErrPrincipalNotFound)
	require.NoError(t, d.Add("alice", "correct-password-123", sessionguard.Principal{ID: "u9"}))
}

func TestDirectoryEnableTOTPMarksMFA(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, d.Add("carol", "correct-password-123", sessionguard.Principal{ID: "u3"}))

	_, err := d.TOTPSecret(ctx, "u3")
	assert.ErrorIs(t, err, ErrTOTPNotEnrolled)

	require.NoError(t, d.EnableTOTP("u3", []byte("12345678901234567890")))
	p, err := d.FindPrincipalByID(ctx, "u3")
	require.NoError(t, err)
	assert.True(t, p.MFAEnabled)

	secret, err := d.TOTPSecret(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, []byte("12345678901234567890"), secret)

	assert.ErrorIs(t, d.EnableTOTP("ghost", secret), sessionguard.ErrPrincipalNotFound)
	assert.Error(t, d.EnableTOTP("u3", nil))
}

func principalWithID(id string) sessionguard.Principal {
	return sessionguard.Principal{ID: id}
}

func TestDirectoryUpgradesWeakHashOnLogin(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	require.NoError(t, d.Add("dave", "correct-password-123", sessionguard.Principal{ID: "u4"}))

	weaker, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	require.NoError(t, err)
	legacy, err := weaker.Hash("correct-password-123")
	require.NoError(t, err)
	d.byID["u4"].passwordHash = legacy

	p := principalWithID("u4")
	ok, err := d.VerifyPassword(ctx, p, "correct-password-123")
	require.NoError(t, err)
	assert.True(t, ok)

	upgraded := d.byID["u4"].passwordHash
	assert.NotEqual(t, legacy, upgraded)
	needs, err := d.hasher.NeedsUpgrade(upgraded)
	require.NoError(t, err)
	assert.False(t, needs)

	ok, err = d.VerifyPassword(ctx, p, "correct-password-123")
	require.NoError(t, err)
	assert.True(t, ok)
}
