package service

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/vouch/pkg/jwtx"
)

// KeyRotationService rotates the in-memory session signing keys. Retired
// keys keep verifying until restart, so rotation never logs anyone out.
type KeyRotationService struct {
	KeyManager *jwtx.KeyManager
	Logger     *slog.Logger
}

// RotateKeyResponse is the outcome of a rotation.
type RotateKeyResponse struct {
	NewKID     string `json:"new_kid"`
	ActiveKeys int    `json:"active_keys"`
}

// RotateKey adds a fresh signer and retires the oldest one.
func (s *KeyRotationService) RotateKey() (RotateKeyResponse, error) {
	if s.KeyManager == nil {
		return RotateKeyResponse{}, fmt.Errorf("%w: KeyManager is required", ErrConfiguration)
	}

	kid, err := s.KeyManager.Rotate()
	if err != nil {
		return RotateKeyResponse{}, fmt.Errorf("failed to rotate signing key: %w", err)
	}

	resp := RotateKeyResponse{NewKID: kid, ActiveKeys: s.KeyManager.NumSigners()}
	if s.Logger != nil {
		s.Logger.Info("rotated signing key", "kid", kid, "active_keys", resp.ActiveKeys)
	}
	return resp, nil
}
