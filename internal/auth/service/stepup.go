package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/pkg/idx"
)

const DefaultStepUpTTL = 15 * time.Minute

// StepUpService grants short-lived elevation on top of a base session after
// the subject proves itself again.
type StepUpService struct {
	Store       store.Store
	Passwords   *PasswordAuthenticator
	TOTP        *TOTPService
	BackupCodes *BackupCodeService

	// TTL defaults to DefaultStepUpTTL.
	TTL time.Duration
	Now func() time.Time
}

// VerifyStepUp checks credential with method and records a step-up bound to
// baseSessionID.
func (s *StepUpService) VerifyStepUp(ctx context.Context, subjectID, baseSessionID string, method domain.StepUpMethod, credential string) (domain.StepUpSession, error) {
	base, err := s.Store.Sessions().GetSession(ctx, baseSessionID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.StepUpSession{}, ErrUnauthenticated
	}
	if err != nil {
		return domain.StepUpSession{}, storeErr("failed to get session", err)
	}
	if base.SubjectID != subjectID || !base.Live(now(s.Now)) {
		return domain.StepUpSession{}, ErrUnauthenticated
	}

	if err := s.checkCredential(ctx, subjectID, method, credential); err != nil {
		return domain.StepUpSession{}, err
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultStepUpTTL
	}
	ts := now(s.Now)
	su := domain.StepUpSession{
		ID:            idx.NewAt(ts).String(),
		SubjectID:     subjectID,
		BaseSessionID: baseSessionID,
		Method:        method,
		CreatedAt:     ts,
		ExpiresAt:     ts.Add(ttl),
	}
	if err := s.Store.StepUps().CreateStepUp(ctx, su); err != nil {
		return domain.StepUpSession{}, storeErr("failed to create step-up", err)
	}
	return su, nil
}

func (s *StepUpService) checkCredential(ctx context.Context, subjectID string, method domain.StepUpMethod, credential string) error {
	switch method {
	case domain.StepUpPassword:
		if s.Passwords == nil {
			break
		}
		return s.Passwords.VerifySubject(ctx, subjectID, credential)

	case domain.StepUpTOTP:
		if s.TOTP == nil {
			break
		}
		_, err := s.TOTP.Verify(ctx, subjectID, credential, "")
		if errors.Is(err, ErrFactorNotFound) {
			return ErrInvalidSecret
		}
		return err

	case domain.StepUpBackupCode:
		if s.BackupCodes == nil {
			break
		}
		_, err := s.BackupCodes.Verify(ctx, subjectID, credential)
		return err
	}

	return fmt.Errorf("%w: step-up method %q not available", ErrConfiguration, method)
}

// HasValidStepUp reports whether the pair has an unexpired step-up. A
// positive maxAge also rejects step-ups older than maxAge.
func (s *StepUpService) HasValidStepUp(ctx context.Context, subjectID, baseSessionID string, maxAge time.Duration) (bool, error) {
	ts := now(s.Now)

	su, err := s.Store.StepUps().LatestStepUp(ctx, subjectID, baseSessionID, ts)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("failed to get step-up", err)
	}

	if maxAge > 0 && ts.Sub(su.CreatedAt) > maxAge {
		return false, nil
	}
	return true, nil
}

// RequireStepUp returns nil when HasValidStepUp holds, and a
// *StepUpRequiredError listing the usable methods otherwise.
func (s *StepUpService) RequireStepUp(ctx context.Context, subjectID, baseSessionID string, maxAge time.Duration) error {
	ok, err := s.HasValidStepUp(ctx, subjectID, baseSessionID, maxAge)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	methods, err := s.Methods(ctx, subjectID)
	if err != nil {
		return err
	}
	return &StepUpRequiredError{Methods: methods, MaxAge: maxAge}
}

// Methods lists the step-up methods subjectID can currently use.
func (s *StepUpService) Methods(ctx context.Context, subjectID string) ([]domain.StepUpMethod, error) {
	var methods []domain.StepUpMethod
	if s.Passwords != nil {
		methods = append(methods, domain.StepUpPassword)
	}
	if s.TOTP != nil {
		ok, err := s.TOTP.HasActiveFactor(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if ok {
			methods = append(methods, domain.StepUpTOTP)
		}
	}
	if s.BackupCodes != nil {
		n, err := s.BackupCodes.Remaining(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			methods = append(methods, domain.StepUpBackupCode)
		}
	}
	return methods, nil
}

// Revoke drops every step-up of the pair.
func (s *StepUpService) Revoke(ctx context.Context, subjectID, baseSessionID string) (int64, error) {
	n, err := s.Store.StepUps().DeleteStepUps(ctx, subjectID, baseSessionID)
	if err != nil {
		return 0, storeErr("failed to delete step-ups", err)
	}
	return n, nil
}

// CleanupExpired deletes step-up rows past their expiry.
func (s *StepUpService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.Store.StepUps().DeleteExpiredStepUps(ctx, now(s.Now))
	if err != nil {
		return 0, storeErr("failed to delete expired step-ups", err)
	}
	return n, nil
}
