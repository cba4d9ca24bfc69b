package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordRegister(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	u, err := e.passwords.Register(ctx, "Alice@Example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
	require.NotContains(t, u.PasswordHash, testPassword)

	_, err = e.passwords.Register(ctx, "alice@example.com", testPassword)
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = e.passwords.Register(ctx, "not an email", testPassword)
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = e.passwords.Register(ctx, "Bob <bob@example.com>", testPassword)
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = e.passwords.Register(ctx, "bob@example.com", "short")
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestPasswordAuthenticate(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.register(t, "alice@example.com", testPassword)

	got, err := e.passwords.Authenticate(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	got, err = e.passwords.Authenticate(ctx, "ALICE@example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = e.passwords.Authenticate(ctx, "alice@example.com", "wrong password")
	require.ErrorIs(t, err, ErrInvalidSecret)

	_, err = e.passwords.Authenticate(ctx, "nobody@example.com", testPassword)
	require.ErrorIs(t, err, ErrInvalidSecret)

	require.NoError(t, e.passwords.VerifySubject(ctx, u.ID, testPassword))
	require.ErrorIs(t, e.passwords.VerifySubject(ctx, "missing", testPassword), ErrInvalidSecret)
}

func TestCheckPasswordPolicy(t *testing.T) {
	for _, tc := range []struct {
		name     string
		password string
		ok       bool
	}{
		{"too short", "1234567", false},
		{"minimum", "12345678", true},
		{"multibyte counted as runes", strings.Repeat("é", 8), true},
		{"maximum", strings.Repeat("a", MaxPasswordLength), true},
		{"too long", strings.Repeat("a", MaxPasswordLength+1), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckPasswordPolicy(tc.password)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidPassword)
			}
		})
	}
}
