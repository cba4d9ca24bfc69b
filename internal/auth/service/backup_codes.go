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

const (
	backupCodeCount  = 10 // codes per batch
	backupCodeLength = 8
)

// BackupCodeService issues and redeems single-use recovery codes.
type BackupCodeService struct {
	Store store.Store
	Now   func() time.Time
	Rand  io.Reader
}

// Generate replaces every unused code of subjectID with a fresh batch and
// returns the plaintext codes. They are not retrievable afterwards.
func (s *BackupCodeService) Generate(ctx context.Context, subjectID string, count int) ([]string, error) {
	var codes []string
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		codes, err = s.replace(ctx, tx, subjectID, count)
		return err
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// replace does the work of Generate on st, which must already be a
// transaction.
func (s *BackupCodeService) replace(ctx context.Context, st store.Store, subjectID string, count int) ([]string, error) {
	if count <= 0 {
		count = backupCodeCount
	}

	ts := now(s.Now)
	plain := make([]string, count)
	rows := make([]domain.BackupCode, count)
	for i := range count {
		code, err := cryptox.RandomString(randReader(s.Rand), cryptox.BackupCodeAlphabet, backupCodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		plain[i] = code
		rows[i] = domain.BackupCode{
			ID:        idx.NewAt(ts).String(),
			SubjectID: subjectID,
			CodeHash:  cryptox.FingerprintToken(code),
			CreatedAt: ts,
		}
	}

	if _, err := st.BackupCodes().DeleteUnusedBackupCodes(ctx, subjectID); err != nil {
		return nil, storeErr("failed to delete old backup codes", err)
	}
	if err := st.BackupCodes().CreateBackupCodes(ctx, rows); err != nil {
		return nil, storeErr("failed to store backup codes", err)
	}

	return plain, nil
}

// Verify redeems code for subjectID and returns how many unused codes are
// left. A used, unknown or malformed code is ErrInvalidSecret.
func (s *BackupCodeService) Verify(ctx context.Context, subjectID, code string) (int, error) {
	canonical := cryptox.CanonicalizeCode(code)
	if len(canonical) != backupCodeLength {
		return 0, ErrInvalidSecret
	}

	err := s.Store.BackupCodes().ConsumeBackupCode(ctx, subjectID, cryptox.FingerprintToken(canonical), now(s.Now))
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrInvalidSecret
	}
	if err != nil {
		return 0, storeErr("failed to consume backup code", err)
	}

	return s.Remaining(ctx, subjectID)
}

// Remaining counts the unused codes of subjectID.
func (s *BackupCodeService) Remaining(ctx context.Context, subjectID string) (int, error) {
	n, err := s.Store.BackupCodes().CountUnusedBackupCodes(ctx, subjectID)
	if err != nil {
		return 0, storeErr("failed to count backup codes", err)
	}
	return n, nil
}
