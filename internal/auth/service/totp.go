package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/pkg/cryptox"
	"github.com/aussiebroadwan/vouch/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpSecretSize = 32 // 256-bit seed
	totpSkew       = 1  // accept one step either side

	DefaultTOTPEnrollmentTTL   = 15 * time.Minute
	DefaultTOTPEnrollmentTries = 5

	defaultTOTPIssuer     = "vouch"
	defaultTOTPPeriod     = 30
	minTOTPPeriod         = 15
	maxTOTPPeriod         = 120
	defaultTOTPDigits     = otp.DigitsSix
	defaultTOTPAlgorithm  = otp.AlgorithmSHA1
	defaultTOTPFactorName = "Authenticator"
)

// TOTPOptions tune a new factor. Zero values take SHA1, 6 digits and 30s.
// Anything else outside SHA1/SHA256/SHA512, 6 or 8 digits and a 15-120s
// period is ErrInvalidTOTPOption.
type TOTPOptions struct {
	Algorithm string
	Digits    int
	Period    int
}

// TOTPEnrollment is returned once, when a factor is created. Secret and URI
// must reach the user's authenticator app and are not shown again.
type TOTPEnrollment struct {
	FactorID    string
	ChallengeID string
	Secret      string
	URI         string
	ExpiresAt   time.Time
}

// TOTPService manages authenticator-app factors.
//
// Verify keeps no attempt counter of its own; callers must rate limit it.
type TOTPService struct {
	Store       store.Store
	Challenges  *ChallengeService
	BackupCodes *BackupCodeService
	Sealer      *cryptox.Sealer
	Issuer      string
	Now         func() time.Time
	Rand        io.Reader
}

// Enroll creates a pending factor and the enrollment challenge that gates
// it. Older pending enrollments of the subject are invalidated.
func (s *TOTPService) Enroll(ctx context.Context, subjectID, accountName, name string, opts TOTPOptions) (TOTPEnrollment, error) {
	if s.Sealer == nil {
		return TOTPEnrollment{}, fmt.Errorf("%w: totp secret sealer missing", ErrConfiguration)
	}

	algorithm, err := parseAlgorithm(opts.Algorithm)
	if err != nil {
		return TOTPEnrollment{}, err
	}
	digits := otp.Digits(opts.Digits)
	if opts.Digits == 0 {
		digits = defaultTOTPDigits
	}
	if digits != otp.DigitsSix && digits != otp.DigitsEight {
		return TOTPEnrollment{}, fmt.Errorf("%w: digits must be 6 or 8", ErrInvalidTOTPOption)
	}
	period := opts.Period
	if period == 0 {
		period = defaultTOTPPeriod
	}
	if period < minTOTPPeriod || period > maxTOTPPeriod {
		return TOTPEnrollment{}, fmt.Errorf("%w: period must be between %d and %d seconds",
			ErrInvalidTOTPOption, minTOTPPeriod, maxTOTPPeriod)
	}
	if name == "" {
		name = defaultTOTPFactorName
	}
	if accountName == "" {
		accountName = subjectID
	}
	issuer := s.Issuer
	if issuer == "" {
		issuer = defaultTOTPIssuer
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      uint(period),
		SecretSize:  totpSecretSize,
		Digits:      digits,
		Algorithm:   algorithm,
		Rand:        randReader(s.Rand),
	})
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	sealed, err := s.Sealer.Seal([]byte(key.Secret()))
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("failed to seal TOTP secret: %w", err)
	}

	var (
		challenge domain.Challenge
		factor    domain.Factor
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		challenges := s.Challenges.In(tx)
		if _, err := challenges.Invalidate(ctx, subjectID, domain.ChallengeTOTPEnrollment); err != nil {
			return err
		}

		challenge, _, err = challenges.Create(ctx, CreateChallengeParams{
			Type:        domain.ChallengeTOTPEnrollment,
			Identifier:  subjectID,
			SubjectID:   subjectID,
			TTL:         DefaultTOTPEnrollmentTTL,
			MaxAttempts: DefaultTOTPEnrollmentTries,
		})
		if err != nil {
			return err
		}

		factor = domain.Factor{
			ID:                    idx.NewAt(challenge.CreatedAt).String(),
			SubjectID:             subjectID,
			Name:                  name,
			SecretSealed:          sealed,
			Algorithm:             algorithm.String(),
			Digits:                digits.Length(),
			Period:                period,
			Status:                domain.FactorPending,
			EnrollmentChallengeID: challenge.ID,
			CreatedAt:             challenge.CreatedAt,
		}
		if err := tx.Factors().CreateFactor(ctx, factor); err != nil {
			return storeErr("failed to create factor", err)
		}
		return nil
	})
	if err != nil {
		return TOTPEnrollment{}, err
	}

	return TOTPEnrollment{
		FactorID:    factor.ID,
		ChallengeID: challenge.ID,
		Secret:      key.Secret(),
		URI:         key.URL(),
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

// VerifyEnrollment checks the first code from the authenticator. On success
// the challenge is completed, the factor activated and a backup code batch
// issued, all in one transaction. A wrong code still spends an attempt.
func (s *TOTPService) VerifyEnrollment(ctx context.Context, subjectID, challengeID, code string) ([]string, error) {
	factor, err := s.Store.Factors().GetFactorByEnrollmentChallenge(ctx, challengeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, storeErr("failed to get factor", err)
	}
	if factor.SubjectID != subjectID {
		return nil, ErrChallengeNotFound
	}
	if factor.Status != domain.FactorPending {
		return nil, ErrAlreadyVerified
	}

	secret, err := s.openSecret(factor)
	if err != nil {
		return nil, err
	}

	if _, err := s.Challenges.RecordAttempt(ctx, challengeID, domain.ChallengeTOTPEnrollment); err != nil {
		return nil, err
	}
	if !s.validate(factor, secret, code, now(s.Now)) {
		return nil, ErrInvalidSecret
	}

	var codes []string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := s.Challenges.In(tx).Complete(ctx, challengeID, domain.ChallengeTOTPEnrollment); err != nil {
			return err
		}

		err := tx.Factors().ActivateFactor(ctx, factor.ID, now(s.Now))
		if errors.Is(err, store.ErrNotFound) {
			return ErrAlreadyVerified
		}
		if err != nil {
			return storeErr("failed to activate factor", err)
		}

		codes, err = s.BackupCodes.replace(ctx, tx, subjectID, backupCodeCount)
		return err
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// Verify checks code against factorID, or against every active factor of
// the subject when factorID is empty.
func (s *TOTPService) Verify(ctx context.Context, subjectID, code, factorID string) (domain.Factor, error) {
	var candidates []domain.Factor
	if factorID != "" {
		f, err := s.Store.Factors().GetFactor(ctx, factorID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.Factor{}, ErrFactorNotFound
		}
		if err != nil {
			return domain.Factor{}, storeErr("failed to get factor", err)
		}
		if f.SubjectID != subjectID || f.Status != domain.FactorActive {
			return domain.Factor{}, ErrFactorNotFound
		}
		candidates = []domain.Factor{f}
	} else {
		active, err := s.Store.Factors().ListActiveFactors(ctx, subjectID)
		if err != nil {
			return domain.Factor{}, storeErr("failed to list factors", err)
		}
		if len(active) == 0 {
			return domain.Factor{}, ErrFactorNotFound
		}
		candidates = active
	}

	ts := now(s.Now)
	for _, f := range candidates {
		secret, err := s.openSecret(f)
		if err != nil {
			return domain.Factor{}, err
		}
		if !s.validate(f, secret, code, ts) {
			continue
		}

		if err := s.Store.Factors().TouchFactor(ctx, f.ID, ts); err != nil {
			return domain.Factor{}, storeErr("failed to update factor", err)
		}
		f.LastUsedAt = &ts
		return f, nil
	}

	return domain.Factor{}, ErrInvalidSecret
}

// Disable turns off a factor. The row is kept. Disabling the last active
// factor also drops the unused backup codes.
func (s *TOTPService) Disable(ctx context.Context, subjectID, factorID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		err := tx.Factors().DisableFactor(ctx, factorID, subjectID, now(s.Now))
		if errors.Is(err, store.ErrNotFound) {
			return ErrFactorNotFound
		}
		if err != nil {
			return storeErr("failed to disable factor", err)
		}

		remaining, err := tx.Factors().CountActiveFactors(ctx, subjectID)
		if err != nil {
			return storeErr("failed to count factors", err)
		}
		if remaining == 0 {
			if _, err := tx.BackupCodes().DeleteUnusedBackupCodes(ctx, subjectID); err != nil {
				return storeErr("failed to delete backup codes", err)
			}
		}
		return nil
	})
}

// ListFactors returns every factor of the subject, disabled ones included.
func (s *TOTPService) ListFactors(ctx context.Context, subjectID string) ([]domain.Factor, error) {
	factors, err := s.Store.Factors().ListFactors(ctx, subjectID)
	if err != nil {
		return nil, storeErr("failed to list factors", err)
	}
	return factors, nil
}

// HasActiveFactor reports whether the subject can answer a TOTP prompt.
func (s *TOTPService) HasActiveFactor(ctx context.Context, subjectID string) (bool, error) {
	n, err := s.Store.Factors().CountActiveFactors(ctx, subjectID)
	if err != nil {
		return false, storeErr("failed to count factors", err)
	}
	return n > 0, nil
}

func (s *TOTPService) openSecret(f domain.Factor) (string, error) {
	if s.Sealer == nil {
		return "", fmt.Errorf("%w: totp secret sealer missing", ErrConfiguration)
	}
	secret, err := s.Sealer.Open(f.SecretSealed)
	if err != nil {
		return "", fmt.Errorf("failed to open TOTP secret: %w", err)
	}
	return string(secret), nil
}

func (s *TOTPService) validate(f domain.Factor, secret, code string, at time.Time) bool {
	algorithm, err := parseAlgorithm(f.Algorithm)
	if err != nil {
		return false
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, totp.ValidateOpts{
		Period:    uint(f.Period),
		Skew:      totpSkew,
		Digits:    otp.Digits(f.Digits),
		Algorithm: algorithm,
	})
	return err == nil && ok
}

func parseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "", "SHA1":
		return defaultTOTPAlgorithm, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	}
	return 0, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidTOTPOption, name)
}
