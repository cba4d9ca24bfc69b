package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/pkg/cryptox"
	"github.com/aussiebroadwan/vouch/pkg/idx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// PasswordAuthenticator checks passwords. Unknown, suspended and wrong
// password all come back as ErrInvalidSecret and take the same work.
type PasswordAuthenticator struct {
	Store store.Store
	Now   func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Register creates an active user with a hashed password.
func (a *PasswordAuthenticator) Register(ctx context.Context, email, password string) (domain.User, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return domain.User{}, ErrInvalidEmail
	}
	if err := CheckPasswordPolicy(password); err != nil {
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	ts := now(a.Now)
	u := domain.User{
		ID:           idx.NewAt(ts).String(),
		Email:        strings.ToLower(addr.Address),
		PasswordHash: hash,
		Status:       domain.UserActive,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	err = a.Store.Users().CreateUser(ctx, u)
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.User{}, ErrEmailTaken
	}
	if err != nil {
		return domain.User{}, storeErr("failed to create user", err)
	}
	return u, nil
}

// Authenticate returns the active user owning email and password.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := a.Store.Users().GetUserByEmail(ctx, email)
	return a.check(u, err, password)
}

// VerifySubject checks password for a known subject, as step-up does.
func (a *PasswordAuthenticator) VerifySubject(ctx context.Context, subjectID, password string) error {
	u, err := a.Store.Users().GetUserByID(ctx, subjectID)
	_, err = a.check(u, err, password)
	return err
}

func (a *PasswordAuthenticator) check(u domain.User, lookupErr error, password string) (domain.User, error) {
	if lookupErr != nil && !errors.Is(lookupErr, store.ErrNotFound) {
		return domain.User{}, storeErr("failed to get user", lookupErr)
	}

	if lookupErr != nil {
		// Burn the same argon2 work as a real check.
		_ = cryptox.VerifyPassword(password, a.dummy())
		return domain.User{}, ErrInvalidSecret
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.User{}, ErrInvalidSecret
		}
		return domain.User{}, fmt.Errorf("failed to verify password: %w", err)
	}
	if u.Status != domain.UserActive {
		return domain.User{}, ErrInvalidSecret
	}
	return u, nil
}

func (a *PasswordAuthenticator) dummy() string {
	a.dummyOnce.Do(func() {
		a.dummyHash, _ = cryptox.HashPassword("vouch-dummy-password")
	})
	return a.dummyHash
}

// CheckPasswordPolicy enforces the length limits on a new password.
func CheckPasswordPolicy(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidPassword, MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidPassword, MaxPasswordLength)
	}
	return nil
}
