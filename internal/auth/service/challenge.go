package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/pkg/cryptox"
	"github.com/aussiebroadwan/vouch/pkg/idx"
)

// ChallengeService runs the shared lifecycle behind every single-use secret:
// create, spend an attempt, compare, complete.
type ChallengeService struct {
	Store store.Store
	Now   func() time.Time
	Rand  io.Reader
}

// CreateChallengeParams describes a new challenge. An empty Secret makes the
// service generate a 256-bit URL-safe token.
type CreateChallengeParams struct {
	Type        domain.ChallengeType
	Identifier  string
	SubjectID   string
	TTL         time.Duration
	MaxAttempts int
	Secret      string
}

// CheckFunc decides whether a submitted candidate satisfies c. It runs after
// the attempt has been recorded.
type CheckFunc func(c domain.Challenge) (bool, error)

// In returns a copy of the service bound to st, usually a transaction.
func (s *ChallengeService) In(st store.Store) *ChallengeService {
	return &ChallengeService{Store: st, Now: s.Now, Rand: s.Rand}
}

// Create persists a challenge and returns it with the plaintext secret. The
// plaintext is never stored and cannot be recovered later.
func (s *ChallengeService) Create(ctx context.Context, p CreateChallengeParams) (domain.Challenge, string, error) {
	if !p.Type.Valid() {
		return domain.Challenge{}, "", fmt.Errorf("%w: unknown challenge type %q", ErrConfiguration, p.Type)
	}
	if p.Identifier == "" {
		return domain.Challenge{}, "", fmt.Errorf("%w: challenge identifier is required", ErrConfiguration)
	}
	if p.TTL <= 0 || p.MaxAttempts <= 0 {
		return domain.Challenge{}, "", fmt.Errorf("%w: challenge ttl and max attempts must be positive", ErrConfiguration)
	}

	secret := p.Secret
	if secret == "" {
		var err error
		secret, err = cryptox.GenerateTokenFrom(randReader(s.Rand), cryptox.TokenSize256)
		if err != nil {
			return domain.Challenge{}, "", fmt.Errorf("failed to generate challenge secret: %w", err)
		}
	}

	ts := now(s.Now)
	c := domain.Challenge{
		ID:          idx.NewAt(ts).String(),
		Type:        p.Type,
		Identifier:  p.Identifier,
		SecretHash:  cryptox.FingerprintToken(secret),
		SubjectID:   p.SubjectID,
		ExpiresAt:   ts.Add(p.TTL),
		MaxAttempts: p.MaxAttempts,
		CreatedAt:   ts,
	}
	if err := s.Store.Challenges().CreateChallenge(ctx, c); err != nil {
		return domain.Challenge{}, "", storeErr("failed to create challenge", err)
	}

	return c, secret, nil
}

// Get returns the challenge with id.
func (s *ChallengeService) Get(ctx context.Context, id string) (domain.Challenge, error) {
	c, err := s.Store.Challenges().GetChallenge(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, storeErr("failed to get challenge", err)
	}
	return c, nil
}

// RecordAttempt spends one attempt on a pending challenge of type typ. When
// nothing can be spent the row is read back to explain why.
func (s *ChallengeService) RecordAttempt(ctx context.Context, id string, typ domain.ChallengeType) (domain.Challenge, error) {
	ts := now(s.Now)

	c, err := s.Store.Challenges().RecordAttempt(ctx, id, typ, ts)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Challenge{}, s.classify(ctx, id, typ, ts)
	}
	if err != nil {
		return domain.Challenge{}, storeErr("failed to record attempt", err)
	}
	return c, nil
}

// Complete marks a pending challenge verified.
func (s *ChallengeService) Complete(ctx context.Context, id string, typ domain.ChallengeType) (domain.Challenge, error) {
	ts := now(s.Now)

	c, err := s.Store.Challenges().CompleteChallenge(ctx, id, ts)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Challenge{}, s.classify(ctx, id, typ, ts)
	}
	if err != nil {
		return domain.Challenge{}, storeErr("failed to complete challenge", err)
	}
	return c, nil
}

// Verify spends an attempt and compares the fingerprint of candidate with
// the stored one in constant time. A mismatch returns ErrInvalidSecret with
// the attempt already counted.
func (s *ChallengeService) Verify(ctx context.Context, id string, typ domain.ChallengeType, candidate string) (domain.Challenge, error) {
	return s.VerifyWith(ctx, id, typ, func(c domain.Challenge) (bool, error) {
		return cryptox.ConstantTimeEqual(c.SecretHash, cryptox.FingerprintToken(candidate)), nil
	})
}

// VerifyWith is Verify with a caller supplied check.
func (s *ChallengeService) VerifyWith(ctx context.Context, id string, typ domain.ChallengeType, check CheckFunc) (domain.Challenge, error) {
	c, err := s.RecordAttempt(ctx, id, typ)
	if err != nil {
		return domain.Challenge{}, err
	}

	ok, err := check(c)
	if err != nil {
		return domain.Challenge{}, err
	}
	if !ok {
		return c, ErrInvalidSecret
	}

	return s.Complete(ctx, id, typ)
}

// Invalidate force-expires every pending challenge of typ for identifier.
func (s *ChallengeService) Invalidate(ctx context.Context, identifier string, typ domain.ChallengeType) (int64, error) {
	n, err := s.Store.Challenges().InvalidatePending(ctx, identifier, typ, now(s.Now))
	if err != nil {
		return 0, storeErr("failed to invalidate challenges", err)
	}
	return n, nil
}

// Expire force-expires a single pending challenge. Already terminal
// challenges are left as they are.
func (s *ChallengeService) Expire(ctx context.Context, id string) error {
	err := s.Store.Challenges().ExpireChallenge(ctx, id, now(s.Now))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeErr("failed to expire challenge", err)
	}
	return nil
}

// LinkSubject attaches subjectID to a challenge created without one.
// Relinking to the same subject is a no-op.
func (s *ChallengeService) LinkSubject(ctx context.Context, id, subjectID string) error {
	err := s.Store.Challenges().LinkSubject(ctx, id, subjectID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return storeErr("failed to link challenge", err)
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.SubjectID != subjectID {
		return fmt.Errorf("%w: challenge is linked to another subject", ErrChallengeNotFound)
	}
	return nil
}

func (s *ChallengeService) classify(ctx context.Context, id string, typ domain.ChallengeType, at time.Time) error {
	c, err := s.Store.Challenges().GetChallenge(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChallengeNotFound
	}
	if err != nil {
		return storeErr("failed to get challenge", err)
	}
	if c.Type != typ {
		return ErrChallengeNotFound
	}

	switch c.State(at) {
	case domain.ChallengeExpired:
		return ErrChallengeExpired
	case domain.ChallengeExceeded:
		return ErrAttemptsExceeded
	default:
		// verified, or a concurrent writer won the row
		return ErrChallengeNotFound
	}
}
