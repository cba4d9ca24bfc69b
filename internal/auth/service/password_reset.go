package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/delivery"
	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/pkg/cryptox"
)

const (
	DefaultPasswordResetTTL      = time.Hour
	DefaultPasswordResetAttempts = 5
)

// PasswordResetService resets passwords through an emailed link. Request
// looks the same to the caller whether or not the address has an account.
type PasswordResetService struct {
	Store      store.Store
	Challenges *ChallengeService
	Sessions   *SessionService
	Delivery   *delivery.Router
	Logger     *slog.Logger
	LinkBase   string

	TTL         time.Duration
	MaxAttempts int
	Now         func() time.Time
}

// Request sends a reset link when email belongs to an active user. Every
// other case returns nil without sending anything.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("failed to get user", err)
	}
	if u.Status != domain.UserActive {
		return nil
	}

	if s.Delivery == nil {
		return fmt.Errorf("%w: no delivery router", ErrConfiguration)
	}
	sender, err := s.Delivery.Sender(delivery.ChannelEmail)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultPasswordResetTTL
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultPasswordResetAttempts
	}

	if _, err := s.Challenges.Invalidate(ctx, u.Email, domain.ChallengePasswordReset); err != nil {
		return err
	}
	c, token, err := s.Challenges.Create(ctx, CreateChallengeParams{
		Type:        domain.ChallengePasswordReset,
		Identifier:  u.Email,
		SubjectID:   u.ID,
		TTL:         ttl,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return err
	}

	link, err := challengeLink(s.LinkBase, c.ID, token)
	if err != nil {
		return err
	}
	if err := sender.SendLink(ctx, u.Email, link, ttl); err != nil {
		_ = s.Challenges.Expire(ctx, c.ID)
		// same response as an unknown address
		s.logger().ErrorContext(ctx, "failed to deliver password reset link",
			"challenge_id", c.ID, "error", err)
	}
	return nil
}

// Reset consumes the link token, sets the new password and signs the user
// out everywhere. Completing the challenge, the password write and the
// revocations commit together; only the spent attempt survives a failure.
func (s *PasswordResetService) Reset(ctx context.Context, challengeID, token, newPassword string) error {
	if err := CheckPasswordPolicy(newPassword); err != nil {
		return err
	}

	c, err := s.Challenges.RecordAttempt(ctx, challengeID, domain.ChallengePasswordReset)
	if err != nil {
		return err
	}
	if !cryptox.ConstantTimeEqual(c.SecretHash, cryptox.FingerprintToken(token)) {
		return ErrInvalidSecret
	}
	if c.SubjectID == "" {
		return ErrChallengeNotFound
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var revoked int64
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		challenges := s.Challenges.In(tx)
		if _, err := challenges.Complete(ctx, c.ID, domain.ChallengePasswordReset); err != nil {
			return err
		}

		err := tx.Users().UpdatePasswordHash(ctx, c.SubjectID, hash, now(s.Now))
		if errors.Is(err, store.ErrNotFound) {
			return ErrChallengeNotFound
		}
		if err != nil {
			return storeErr("failed to update password", err)
		}

		if _, err := challenges.Invalidate(ctx, c.Identifier, domain.ChallengePasswordReset); err != nil {
			return err
		}

		if s.Sessions != nil {
			revoked, err = s.Sessions.In(tx).RevokeAll(ctx, c.SubjectID, "", domain.RevokeReasonPasswordReset)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger().InfoContext(ctx, "password reset", "subject_id", c.SubjectID, "sessions_revoked", revoked)
	return nil
}

func (s *PasswordResetService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
