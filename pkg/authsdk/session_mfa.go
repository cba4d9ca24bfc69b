package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// EnrollTOTP starts authenticator enrollment. It needs a recent step-up.
func (s *Session) EnrollTOTP(ctx context.Context, req TOTPEnrollRequest) (*TOTPEnrollResponse, error) {
	var out TOTPEnrollResponse
	if err := s.call(ctx, http.MethodPost, "/v1/mfa/totp/enroll", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTOTP completes enrollment with the first code from the
// authenticator and returns the backup codes.
func (s *Session) VerifyTOTP(ctx context.Context, challengeID, code string) (*BackupCodesResponse, error) {
	var out BackupCodesResponse
	err := s.call(ctx, http.MethodPost, "/v1/mfa/totp/verify",
		TOTPVerifyRequest{ChallengeID: challengeID, Code: code}, &out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFactors lists every authenticator factor, disabled ones included.
func (s *Session) ListFactors(ctx context.Context) ([]FactorInfo, error) {
	var out FactorListResponse
	if err := s.call(ctx, http.MethodGet, "/v1/mfa/totp", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Factors, nil
}

// DisableFactor turns off a factor. It needs a recent step-up.
func (s *Session) DisableFactor(ctx context.Context, factorID string) error {
	return s.call(ctx, http.MethodDelete, "/v1/mfa/totp/"+url.PathEscape(factorID), nil, nil, http.StatusNoContent)
}

// RegenerateBackupCodes replaces every unused backup code. It needs a recent
// step-up.
func (s *Session) RegenerateBackupCodes(ctx context.Context) (*BackupCodesResponse, error) {
	var out BackupCodesResponse
	if err := s.call(ctx, http.MethodPost, "/v1/mfa/backup-codes", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// BackupCodesRemaining counts the unused backup codes.
func (s *Session) BackupCodesRemaining(ctx context.Context) (int, error) {
	var out BackupCodesStatusResponse
	if err := s.call(ctx, http.MethodGet, "/v1/mfa/backup-codes", nil, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Remaining, nil
}
