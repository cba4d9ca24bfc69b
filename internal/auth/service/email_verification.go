package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/delivery"
	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/pkg/cryptox"
)

const (
	DefaultEmailVerificationTTL      = 24 * time.Hour
	DefaultEmailVerificationAttempts = 5
)

// EmailVerificationService proves control of an email address with a link.
type EmailVerificationService struct {
	Store      store.Store
	Challenges *ChallengeService
	Delivery   *delivery.Router

	// LinkBase is the page the link points at; challenge and token are
	// added as query parameters.
	LinkBase string

	TTL         time.Duration
	MaxAttempts int
	Now         func() time.Time
}

// Send issues a verification link for email, replacing any pending one.
// subjectID may be empty for addresses not yet tied to an account.
func (s *EmailVerificationService) Send(ctx context.Context, email, subjectID string) (domain.Challenge, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if subjectID != "" {
		u, err := s.Store.Users().GetUserByID(ctx, subjectID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.Challenge{}, storeErr("failed to get user", err)
		}
		if err == nil && u.EmailVerifiedAt != nil && u.Email == email {
			return domain.Challenge{}, ErrAlreadyVerified
		}
	}

	sender, err := s.sender()
	if err != nil {
		return domain.Challenge{}, err
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultEmailVerificationTTL
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultEmailVerificationAttempts
	}

	if _, err := s.Challenges.Invalidate(ctx, email, domain.ChallengeEmailVerification); err != nil {
		return domain.Challenge{}, err
	}
	c, token, err := s.Challenges.Create(ctx, CreateChallengeParams{
		Type:        domain.ChallengeEmailVerification,
		Identifier:  email,
		SubjectID:   subjectID,
		TTL:         ttl,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return domain.Challenge{}, err
	}

	link, err := challengeLink(s.LinkBase, c.ID, token)
	if err != nil {
		return domain.Challenge{}, err
	}
	if err := sender.SendLink(ctx, email, link, ttl); err != nil {
		_ = s.Challenges.Expire(ctx, c.ID)
		return domain.Challenge{}, fmt.Errorf("failed to deliver verification link: %w", err)
	}
	return c, nil
}

// SendForSubject sends a verification link to the current address of
// subjectID.
func (s *EmailVerificationService) SendForSubject(ctx context.Context, subjectID string) (domain.Challenge, error) {
	u, err := s.Store.Users().GetUserByID(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Challenge{}, ErrUnauthenticated
	}
	if err != nil {
		return domain.Challenge{}, storeErr("failed to get user", err)
	}
	return s.Send(ctx, u.Email, u.ID)
}

// Verify consumes the link token. When the challenge carries a subject the
// user's email is marked verified in the same transaction that completes
// the challenge.
func (s *EmailVerificationService) Verify(ctx context.Context, challengeID, token string) (domain.Challenge, error) {
	c, err := s.Challenges.RecordAttempt(ctx, challengeID, domain.ChallengeEmailVerification)
	if err != nil {
		return domain.Challenge{}, err
	}
	if !cryptox.ConstantTimeEqual(c.SecretHash, cryptox.FingerprintToken(token)) {
		return c, ErrInvalidSecret
	}

	var done domain.Challenge
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		done, err = s.Challenges.In(tx).Complete(ctx, c.ID, domain.ChallengeEmailVerification)
		if err != nil {
			return err
		}
		if done.SubjectID == "" {
			return nil
		}

		err = tx.Users().MarkEmailVerified(ctx, done.SubjectID, now(s.Now))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return storeErr("failed to mark email verified", err)
		}
		return nil
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return done, nil
}

func (s *EmailVerificationService) sender() (delivery.Sender, error) {
	if s.Delivery == nil {
		return nil, fmt.Errorf("%w: no delivery router", ErrConfiguration)
	}
	sender, err := s.Delivery.Sender(delivery.ChannelEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return sender, nil
}

// challengeLink appends challenge and token query parameters to base.
func challengeLink(base, challengeID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: invalid link base: %w", ErrConfiguration, err)
	}
	q := u.Query()
	q.Set("challenge", challengeID)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
